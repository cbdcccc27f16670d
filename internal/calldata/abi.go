package calldata

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const engineJSON = `[
 {"type":"function","name":"open","stateMutability":"nonpayable","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"urn","type":"address"}]},
 {"type":"function","name":"lock","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"wad","type":"uint256"},{"name":"ref","type":"uint16"}],"outputs":[]},
 {"type":"function","name":"lockSky","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"skyWad","type":"uint256"},{"name":"ref","type":"uint16"}],"outputs":[]},
 {"type":"function","name":"free","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"to","type":"address"},{"name":"wad","type":"uint256"}],"outputs":[{"name":"freed","type":"uint256"}]},
 {"type":"function","name":"freeSky","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"to","type":"address"},{"name":"skyWad","type":"uint256"}],"outputs":[{"name":"skyFreed","type":"uint256"}]},
 {"type":"function","name":"draw","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"to","type":"address"},{"name":"wad","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"wipe","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"wad","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"wipeAll","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"wad","type":"uint256"}]},
 {"type":"function","name":"selectFarm","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"farm","type":"address"},{"name":"ref","type":"uint16"}],"outputs":[]},
 {"type":"function","name":"selectVoteDelegate","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"voteDelegate","type":"address"}],"outputs":[]},
 {"type":"function","name":"hope","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"usr","type":"address"}],"outputs":[]},
 {"type":"function","name":"getReward","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},{"name":"farm","type":"address"},{"name":"to","type":"address"}],"outputs":[{"name":"amt","type":"uint256"}]},
 {"type":"function","name":"multicall","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
 {"type":"function","name":"ownerUrnsCount","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"count","type":"uint256"}]},
 {"type":"function","name":"ownerUrns","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"urn","type":"address"}]},
 {"type":"function","name":"isUrnAuth","stateMutability":"view","inputs":[{"name":"urn","type":"address"},{"name":"usr","type":"address"}],"outputs":[{"name":"ok","type":"bool"}]},
 {"type":"function","name":"urnFarms","stateMutability":"view","inputs":[{"name":"urn","type":"address"}],"outputs":[{"name":"farm","type":"address"}]},
 {"type":"function","name":"urnVoteDelegates","stateMutability":"view","inputs":[{"name":"urn","type":"address"}],"outputs":[{"name":"voteDelegate","type":"address"}]}
]`

const erc20JSON = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"ok","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"amount","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"amount","type":"uint256"}]}
]`

const vatJSON = `[
 {"type":"function","name":"urns","stateMutability":"view","inputs":[{"name":"ilk","type":"bytes32"},{"name":"urn","type":"address"}],"outputs":[{"name":"ink","type":"uint256"},{"name":"art","type":"uint256"}]},
 {"type":"function","name":"ilks","stateMutability":"view","inputs":[{"name":"ilk","type":"bytes32"}],"outputs":[{"name":"Art","type":"uint256"},{"name":"rate","type":"uint256"},{"name":"spot","type":"uint256"},{"name":"line","type":"uint256"},{"name":"dust","type":"uint256"}]}
]`

const migratorJSON = `[
 {"type":"function","name":"migrate","stateMutability":"nonpayable","inputs":[{"name":"oldOwner","type":"address"},{"name":"oldIndex","type":"uint256"},{"name":"newOwner","type":"address"},{"name":"newIndex","type":"uint256"},{"name":"ref","type":"uint16"}],"outputs":[]}
]`

var (
	EngineABI   = mustABI(engineJSON)
	ERC20ABI    = mustABI(erc20JSON)
	VatABI      = mustABI(vatJSON)
	MigratorABI = mustABI(migratorJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
