package params

import (
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// Address identifies this exchange instance; it is bound into every
	// order hash so signed orders cannot be replayed across instances.
	Address common.Address
	// FeeRate is a fixed-point fraction scaled by 1e18, charged on the
	// maker-asset side of each trade. 2.5e15 == 0.25%.
	FeeRate *big.Int
	// FeeAccount accumulates extracted fees.
	FeeAccount common.Address
	// Owner may reclaim untracked surplus from custody.
	Owner common.Address
}

type Node struct {
	DBPath  string
	APIAddr string
	// APIOrigins is the CORS allowlist for the REST/WS surface.
	APIOrigins []string
	LogFile    string
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:    common.HexToAddress("0x00000000000000000000000000000000000000ed"),
			FeeRate:    big.NewInt(2_500_000_000_000_000), // 0.25%
			FeeAccount: common.HexToAddress("0x00000000000000000000000000000000000000fe"),
			Owner:      common.HexToAddress("0x0000000000000000000000000000000000000001"),
		},
		Node: Node{
			DBPath:     "data/escrowdex",
			APIAddr:    ":8080",
			APIOrigins: []string{"*"},
			LogFile:    "logs/node.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("EXCHANGE_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Exchange.Address = common.HexToAddress(addr)
	}
	if rate := os.Getenv("FEE_RATE"); rate != "" {
		if v, ok := new(big.Int).SetString(rate, 10); ok && v.Sign() >= 0 {
			cfg.Exchange.FeeRate = v
		}
	}
	if acct := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(acct) {
		cfg.Exchange.FeeAccount = common.HexToAddress(acct)
	}
	if owner := os.Getenv("OWNER"); common.IsHexAddress(owner) {
		cfg.Exchange.Owner = common.HexToAddress(owner)
	}

	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if origins := os.Getenv("API_ORIGINS"); origins != "" {
		cfg.Node.APIOrigins = strings.Split(origins, ",")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
