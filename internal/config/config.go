package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wizard   WizardConfig   `mapstructure:"wizard"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Executor ExecutorConfig `mapstructure:"executor"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr       string  `mapstructure:"http_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// StreamOrigins are host patterns allowed to open the session stream from
	// a browser on another origin.
	StreamOrigins []string `mapstructure:"stream_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	SessionCheckpoint string `mapstructure:"session_checkpoint"`
	AttemptPrune      string `mapstructure:"attempt_prune"`
}

// ChainConfig names the RPC endpoint and the deployment. Addresses are hex
// strings; an empty address fails the first operation that needs it.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ChainID        int64         `mapstructure:"chain_id"`
	StakeEngine    string        `mapstructure:"stake_engine"`
	SealEngine     string        `mapstructure:"seal_engine"`
	Migrator       string        `mapstructure:"migrator"`
	Vat            string        `mapstructure:"vat"`
	StakeIlk       string        `mapstructure:"stake_ilk"`
	SealIlk        string        `mapstructure:"seal_ilk"`
	SkyToken       string        `mapstructure:"sky_token"`
	MkrToken       string        `mapstructure:"mkr_token"`
	UsdsToken      string        `mapstructure:"usds_token"`
	ReferralCode   uint16        `mapstructure:"referral_code"`
	ReadMaxElapsed time.Duration `mapstructure:"read_max_elapsed"`
	ReceiptPoll    time.Duration `mapstructure:"receipt_poll"`
	ReceiptPollMax time.Duration `mapstructure:"receipt_poll_max"`
}

type WizardConfig struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	RepayAllBuffer   float64       `mapstructure:"repay_all_buffer"`
	AttemptRetention time.Duration `mapstructure:"attempt_retention"`
	RefreshLimit     int           `mapstructure:"refresh_limit"`
}

// RiskConfig seeds the simulator. Dust and the debt ceiling are replaced by
// on-chain values once the collateral type has been read.
type RiskConfig struct {
	CollateralPrice  float64 `mapstructure:"collateral_price"`
	LiquidationRatio float64 `mapstructure:"liquidation_ratio"`
	Dust             float64 `mapstructure:"dust"`
	DebtCeiling      float64 `mapstructure:"debt_ceiling"`
	DebtUtilized     float64 `mapstructure:"debt_utilized"`
	MaxRiskPct       float64 `mapstructure:"max_risk_pct"`
}

type ExecutorConfig struct {
	Mode        string        `mapstructure:"mode"`
	DryRunDelay time.Duration `mapstructure:"dry_run_delay"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.rate_limit_rps", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.stream_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.session_checkpoint", "@every 1m")
	v.SetDefault("cron.attempt_prune", "@every 1h")

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.timeout", "15s")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.stake_engine", "")
	v.SetDefault("chain.seal_engine", "")
	v.SetDefault("chain.migrator", "")
	v.SetDefault("chain.vat", "")
	v.SetDefault("chain.stake_ilk", "LSEV2-SKY-A")
	v.SetDefault("chain.seal_ilk", "LSE-MKR-A")
	v.SetDefault("chain.sky_token", "")
	v.SetDefault("chain.mkr_token", "")
	v.SetDefault("chain.usds_token", "")
	v.SetDefault("chain.referral_code", 0)
	v.SetDefault("chain.read_max_elapsed", "10s")
	v.SetDefault("chain.receipt_poll", "2s")
	v.SetDefault("chain.receipt_poll_max", "10m")

	v.SetDefault("wizard.debounce", "400ms")
	v.SetDefault("wizard.session_ttl", "30m")
	v.SetDefault("wizard.repay_all_buffer", 1.00005)
	v.SetDefault("wizard.attempt_retention", "720h")
	v.SetDefault("wizard.refresh_limit", 4)

	v.SetDefault("risk.collateral_price", 0.06)
	v.SetDefault("risk.liquidation_ratio", 1.25)
	v.SetDefault("risk.dust", 30000)
	v.SetDefault("risk.debt_ceiling", 0)
	v.SetDefault("risk.debt_utilized", 0)
	v.SetDefault("risk.max_risk_pct", 80)

	// dry-run until a wallet is connected; overridable at runtime via executor.mode setting.
	v.SetDefault("executor.mode", "dry-run")
	v.SetDefault("executor.dry_run_delay", "0s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
