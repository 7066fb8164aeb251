package config

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/langell/chainOverflow/pkg/network"
	"github.com/langell/chainOverflow/pkg/types"
)

// Prefix is prepended to every environment variable read by conf
const Prefix = "CHAINOVERFLOW"

// DefaultPrice is the per-call price in wei, 0.0001 ETH
const DefaultPrice = "100000000000000"

// Config holds the application configuration
type Config struct {
	conf.Version
	Web struct {
		APIHost         string        `conf:"default:0.0.0.0:3001" validate:"required,hostname_port"`
		DebugHost       string        `conf:"default:0.0.0.0:4001" validate:"required,hostname_port"`
		ReadTimeout     time.Duration `conf:"default:5s" validate:"gt=0"`
		WriteTimeout    time.Duration `conf:"default:90s" validate:"gt=0"`
		IdleTimeout     time.Duration `conf:"default:120s" validate:"gt=0"`
		ShutdownTimeout time.Duration `conf:"default:20s" validate:"gt=0"`
		CORSOrigin      string        `conf:"default:*"`
		MaxBodyBytes    int64         `conf:"default:1048576" validate:"gt=0"`
	}
	Log struct {
		Level string `conf:"default:info" validate:"oneof=debug info warn error"`
		Env   string `conf:"default:development" validate:"required"`
	}
	Chain struct {
		Network        string        `conf:"help:hardhat or base-sepolia or base; derived from the log env when empty" validate:"omitempty,oneof=hardhat base-sepolia base"`
		RPCEndpoint    string        `conf:"help:overrides the default RPC URL of the network" validate:"omitempty,url"`
		ReceiptTimeout time.Duration `conf:"default:45s" validate:"gt=0"`
		PollInterval   time.Duration `conf:"default:1s" validate:"gt=0"`
	}
	Wallet struct {
		PrivateKey     string `conf:"mask"`
		AllowEphemeral bool   `conf:"default:true"`
	}
	Payment struct {
		Mode             string        `conf:"default:legacy" validate:"oneof=legacy onchain"`
		VaultAddress     string        `validate:"omitempty,eth_addr"`
		Price            string        `conf:"default:100000000000000" validate:"required,number"`
		QuestionPrice    string        `validate:"omitempty,number"`
		AnswerPrice      string        `validate:"omitempty,number"`
		ReplayProtection bool          `conf:"default:false"`
		LedgerBackend    string        `conf:"default:memory" validate:"oneof=memory redis"`
		LedgerTTL        time.Duration `conf:"default:168h" validate:"gt=0"`
	}
	Redis struct {
		Addr     string `conf:"default:127.0.0.1:6379"`
		Password string `conf:"mask"`
		DB       int    `conf:"default:0" validate:"gte=0"`
	}
	RateLimit struct {
		RequestsPerMinute int      `conf:"default:120" validate:"gt=0"`
		Burst             int      `conf:"default:20" validate:"gt=0"`
		TrustedProxies    []string `conf:"help:semicolon separated addresses or CIDRs whose X-Forwarded-For is honored" validate:"dive,ip|cidr"`
	}
	Store struct {
		Seed bool `conf:"default:false"`
	}
}

// Load reads .env, then applies defaults, environment variables and command
// line flags. The returned string holds usage text when --help was passed,
// in which case the error is conf.ErrHelpWanted.
func Load(build string) (Config, string, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := Config{
		Version: conf.Version{
			Build: build,
			Desc:  "ChainOverflow payment gated Q&A API",
		},
	}

	help, err := conf.Parse(Prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return cfg, help, err
		}
		return cfg, "", fmt.Errorf("parsing config: %w", err)
	}

	ApplyLegacyEnv(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}

	return cfg, "", nil
}

// legacyEnv maps the variable names used by earlier deployments onto the
// conf keys. A legacy value is used only when the prefixed key is unset.
var legacyEnv = []struct {
	legacy  string
	current string
	apply   func(cfg *Config, value string)
}{
	{"INTERNAL_WALLET_PRIVATE_KEY", "WALLET_PRIVATE_KEY", func(cfg *Config, v string) { cfg.Wallet.PrivateKey = v }},
	{"VAULT_ADDRESS", "PAYMENT_VAULT_ADDRESS", func(cfg *Config, v string) { cfg.Payment.VaultAddress = v }},
	{"NODE_ENV", "LOG_ENV", func(cfg *Config, v string) { cfg.Log.Env = v }},
	{"LOG_LEVEL", "LOG_LEVEL", func(cfg *Config, v string) { cfg.Log.Level = v }},
	{"PORT", "WEB_API_HOST", func(cfg *Config, v string) { cfg.Web.APIHost = net.JoinHostPort("0.0.0.0", v) }},
}

// ApplyLegacyEnv copies legacy environment values into cfg
func ApplyLegacyEnv(cfg *Config, lookup func(string) (string, bool)) {
	for _, m := range legacyEnv {
		if _, set := lookup(Prefix + "_" + m.current); set {
			continue
		}
		if v, ok := lookup(m.legacy); ok && v != "" {
			m.apply(cfg, v)
		}
	}
}

// Validate checks struct constraints and the values that need parsing
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return types.NewConfigurationError("invalid configuration", err)
	}

	if _, err := c.Prices(); err != nil {
		return err
	}

	if _, err := c.NetworkInfo(); err != nil {
		return types.NewConfigurationError("invalid chain network", err)
	}

	if !c.Wallet.AllowEphemeral && c.Wallet.PrivateKey == "" {
		return types.NewConfigurationError("wallet private key is required when ephemeral wallets are disabled", nil)
	}

	if c.Web.WriteTimeout <= c.VerifyTimeout() {
		msg := fmt.Sprintf("web write timeout %s must exceed the verification timeout %s", c.Web.WriteTimeout, c.VerifyTimeout())
		return types.NewConfigurationError(msg, nil)
	}

	return nil
}

// verifySlack covers the transaction lookup after the receipt wait
const verifySlack = 15 * time.Second

// VerifyTimeout bounds one payment verification
func (c *Config) VerifyTimeout() time.Duration {
	return c.Chain.ReceiptTimeout + verifySlack
}

// NetworkInfo resolves the configured network, deriving it from the
// environment when none is set.
func (c *Config) NetworkInfo() (network.NetworkInfo, error) {
	name := network.Network(c.Chain.Network)
	if name == "" {
		name = network.ForEnvironment(c.Log.Env)
	}
	return network.GetNetworkInfo(name)
}

// RPCURL returns the RPC endpoint override or the network default
func (c *Config) RPCURL() (string, error) {
	if c.Chain.RPCEndpoint != "" {
		return c.Chain.RPCEndpoint, nil
	}
	info, err := c.NetworkInfo()
	if err != nil {
		return "", err
	}
	return info.DefaultRPCURL, nil
}

// Vault returns the vault contract address, or nil when not configured
func (c *Config) Vault() *common.Address {
	if c.Payment.VaultAddress == "" {
		return nil
	}
	addr := common.HexToAddress(c.Payment.VaultAddress)
	return &addr
}

// RoutePrices holds the wei price of each protected route
type RoutePrices struct {
	Question *big.Int
	Answer   *big.Int
}

// Prices parses the configured prices. Route specific prices fall back to
// the default price.
func (c *Config) Prices() (RoutePrices, error) {
	base, err := parseWei(c.Payment.Price)
	if err != nil {
		return RoutePrices{}, types.NewConfigurationError("invalid payment price", err)
	}

	prices := RoutePrices{Question: base, Answer: base}

	if c.Payment.QuestionPrice != "" {
		if prices.Question, err = parseWei(c.Payment.QuestionPrice); err != nil {
			return RoutePrices{}, types.NewConfigurationError("invalid question price", err)
		}
	}

	if c.Payment.AnswerPrice != "" {
		if prices.Answer, err = parseWei(c.Payment.AnswerPrice); err != nil {
			return RoutePrices{}, types.NewConfigurationError("invalid answer price", err)
		}
	}

	return prices, nil
}

// ProtectedRoutes builds the static route table for the paid endpoints
func (c *Config) ProtectedRoutes(payTo common.Address) ([]types.ProtectedRoute, error) {
	prices, err := c.Prices()
	if err != nil {
		return nil, err
	}

	return []types.ProtectedRoute{
		{
			Method:    "POST",
			Path:      "/api/questions",
			Price:     prices.Question,
			Recipient: payTo,
			Label:     "payForQuestion",
		},
		{
			Method:    "POST",
			Path:      "/api/answers",
			Price:     prices.Answer,
			Recipient: payTo,
			Label:     "payFee",
		},
	}, nil
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a whole number of wei", s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive, got %s", s)
	}
	return v, nil
}
