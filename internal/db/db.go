package db

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/skybase-int/tarmac-sub003/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to postgres. An empty DSN returns a nil DB: attempts and
// checkpoints are then not persisted and the repository calls are no-ops.
func Open(cfg config.DBConfig) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil
	}
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

func SetTimezone(db *DB, tz string) error {
	if db == nil || db.SQL == nil || tz == "" {
		return nil
	}
	if strings.ContainsAny(tz, "';") {
		return errors.New("invalid timezone")
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}

// GormOrNil lets callers hand a possibly absent connection to constructors
// that accept *gorm.DB.
func GormOrNil(db *DB) *gorm.DB {
	if db == nil {
		return nil
	}
	return db.Gorm
}
