package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Network selects the fullnode the client talks to.
type Network struct {
	Name string `yaml:"name"`
	// RPCURL overrides the well-known URL for Name when set.
	RPCURL string `yaml:"rpc_url"`
}

// Contract names the on-ledger package and the entry functions the client calls.
type Contract struct {
	PackageID    string `yaml:"package_id"`
	ItemModule   string `yaml:"item_module"`
	MarketModule string `yaml:"market_module"`

	MintFn     string `yaml:"mint_fn"`
	ListFn     string `yaml:"list_fn"`
	BuyFn      string `yaml:"buy_fn"`
	CancelFn   string `yaml:"cancel_fn"`
	WithdrawFn string `yaml:"withdraw_fn"`

	// Fully-qualified declared types used as query filters and for projection.
	ItemType    string `yaml:"item_type"`
	ListingType string `yaml:"listing_type"`

	GasBudget uint64 `yaml:"gas_budget"`
}

type Market struct {
	OperatorAddress    string `yaml:"operator_address"`
	MarketplaceAddress string `yaml:"marketplace_address"`
	PageSize           int    `yaml:"page_size"`
	// MaxPages caps a single fetch pass. 0 means unbounded.
	MaxPages int `yaml:"max_pages"`
}

// Timing holds the settle delays and polling cadence.
//
// Settle delays give the remote indexer time to observe a confirmed
// transaction before dependent views refetch:
//   - MintedSettle: after a mint, before item-minted
//   - ListedSettle: after a list, before item-listed
//   - TradeSettle:  after a buy or cancel, before listing-changed
type Timing struct {
	MintedSettle    time.Duration `yaml:"minted_settle"`
	ListedSettle    time.Duration `yaml:"listed_settle"`
	TradeSettle     time.Duration `yaml:"trade_settle"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

type RPC struct {
	RateLimit      float64       `yaml:"rate_limit_rps"`
	Burst          int           `yaml:"rate_limit_burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Node struct {
	DataDir   string `yaml:"data_dir"`
	APIAddr   string `yaml:"api_addr"`
	LogFile   string `yaml:"log_file"`
	SignerKey string `yaml:"signer_key"`
}

type Config struct {
	Network  Network  `yaml:"network"`
	Contract Contract `yaml:"contract"`
	Market   Market   `yaml:"market"`
	Timing   Timing   `yaml:"timing"`
	RPC      RPC      `yaml:"rpc"`
	Node     Node     `yaml:"node"`
}

var networkURLs = map[string]string{
	"localnet": "http://127.0.0.1:9000",
	"devnet":   "https://fullnode.devnet.sui.io",
	"testnet":  "https://fullnode.testnet.sui.io",
	"mainnet":  "https://fullnode.mainnet.sui.io",
}

func Default() Config {
	return Config{
		Network: Network{Name: "testnet"},
		Contract: Contract{
			ItemModule:   "nft",
			MarketModule: "market",
			MintFn:       "mint",
			ListFn:       "list",
			BuyFn:        "buy",
			CancelFn:     "cancel",
			WithdrawFn:   "withdraw",
			GasBudget:    50_000_000,
		},
		Market: Market{
			PageSize: 50,
		},
		Timing: Timing{
			MintedSettle:    1 * time.Second,
			ListedSettle:    2 * time.Second,
			TradeSettle:     2 * time.Second,
			RefreshInterval: 30 * time.Second,
			ConfirmTimeout:  2 * time.Minute,
			PollInterval:    2 * time.Second,
		},
		RPC: RPC{
			RateLimit:      20,
			Burst:          40,
			RequestTimeout: 15 * time.Second,
		},
		Node: Node{
			DataDir: "data",
			APIAddr: ":8080",
		},
	}
}

// RPCEndpoint resolves the fullnode URL: explicit override first, then the
// well-known URL for the network name.
func (c Config) RPCEndpoint() (string, error) {
	if c.Network.RPCURL != "" {
		return c.Network.RPCURL, nil
	}
	url, ok := networkURLs[c.Network.Name]
	if !ok {
		return "", fmt.Errorf("unknown network %q", c.Network.Name)
	}
	return url, nil
}

// Problems lists configuration gaps as user-facing messages. An empty result
// means every contract identifier needed by the actions is present.
func (c Config) Problems() []string {
	var out []string
	if c.Contract.PackageID == "" {
		out = append(out, "Set PACKAGE_ID in env")
	}
	if c.Contract.ItemModule == "" || c.Contract.MarketModule == "" {
		out = append(out, "Set MODULE_NFT and MODULE_MARKET in env")
	}
	if c.Contract.ItemType == "" {
		out = append(out, "Set TYPE_NFT in env")
	}
	if c.Contract.ListingType == "" {
		out = append(out, "Set TYPE_LISTING in env")
	}
	if c.Market.MarketplaceAddress == "" {
		out = append(out, "Set MARKETPLACE_ADDRESS in env")
	}
	return out
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML config file on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Network.Name = getEnv("SUI_NETWORK", cfg.Network.Name)
	cfg.Network.RPCURL = getEnv("SUI_RPC_URL", cfg.Network.RPCURL)

	cfg.Contract.PackageID = getEnv("PACKAGE_ID", cfg.Contract.PackageID)
	cfg.Contract.ItemModule = getEnv("MODULE_NFT", cfg.Contract.ItemModule)
	cfg.Contract.MarketModule = getEnv("MODULE_MARKET", cfg.Contract.MarketModule)
	cfg.Contract.MintFn = getEnv("FN_MINT", cfg.Contract.MintFn)
	cfg.Contract.ListFn = getEnv("FN_LIST", cfg.Contract.ListFn)
	cfg.Contract.BuyFn = getEnv("FN_BUY", cfg.Contract.BuyFn)
	cfg.Contract.CancelFn = getEnv("FN_CANCEL", cfg.Contract.CancelFn)
	cfg.Contract.WithdrawFn = getEnv("FN_WITHDRAW", cfg.Contract.WithdrawFn)
	cfg.Contract.ItemType = getEnv("TYPE_NFT", cfg.Contract.ItemType)
	cfg.Contract.ListingType = getEnv("TYPE_LISTING", cfg.Contract.ListingType)

	cfg.Market.OperatorAddress = getEnv("ADMIN_ADDRESS", cfg.Market.OperatorAddress)
	cfg.Market.MarketplaceAddress = getEnv("MARKETPLACE_ADDRESS", cfg.Market.MarketplaceAddress)
	if v, err := strconv.ParseUint(os.Getenv("GAS_BUDGET"), 10, 64); err == nil {
		cfg.Contract.GasBudget = v
	}
	cfg.Market.PageSize = getEnvInt("PAGE_SIZE", cfg.Market.PageSize)
	cfg.Market.MaxPages = getEnvInt("MAX_PAGES", cfg.Market.MaxPages)

	cfg.Timing.MintedSettle = getEnvMillis("SETTLE_MINTED_MS", cfg.Timing.MintedSettle)
	cfg.Timing.ListedSettle = getEnvMillis("SETTLE_LISTED_MS", cfg.Timing.ListedSettle)
	cfg.Timing.TradeSettle = getEnvMillis("SETTLE_TRADE_MS", cfg.Timing.TradeSettle)
	cfg.Timing.RefreshInterval = getEnvMillis("REFRESH_INTERVAL_MS", cfg.Timing.RefreshInterval)
	cfg.Timing.ConfirmTimeout = getEnvMillis("CONFIRM_TIMEOUT_MS", cfg.Timing.ConfirmTimeout)
	cfg.Timing.PollInterval = getEnvMillis("POLL_INTERVAL_MS", cfg.Timing.PollInterval)

	if rps := os.Getenv("RPC_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil && v > 0 {
			cfg.RPC.RateLimit = v
		}
	}
	cfg.RPC.Burst = getEnvInt("RPC_RATE_LIMIT_BURST", cfg.RPC.Burst)
	cfg.RPC.RequestTimeout = getEnvMillis("RPC_TIMEOUT_MS", cfg.RPC.RequestTimeout)

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.SignerKey = getEnv("SIGNER_KEY", cfg.Node.SignerKey)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
