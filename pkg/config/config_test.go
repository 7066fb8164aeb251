package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/network"
	"github.com/langell/chainOverflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaults mirrors the conf tag defaults so tests do not depend on os.Args.
func defaults() Config {
	var cfg Config
	cfg.Web.APIHost = "0.0.0.0:3001"
	cfg.Web.DebugHost = "0.0.0.0:4001"
	cfg.Web.ReadTimeout = 5 * time.Second
	cfg.Web.WriteTimeout = 90 * time.Second
	cfg.Web.IdleTimeout = 120 * time.Second
	cfg.Web.ShutdownTimeout = 20 * time.Second
	cfg.Web.CORSOrigin = "*"
	cfg.Web.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Log.Env = "development"
	cfg.Chain.ReceiptTimeout = 45 * time.Second
	cfg.Chain.PollInterval = time.Second
	cfg.Wallet.AllowEphemeral = true
	cfg.Payment.Mode = "legacy"
	cfg.Payment.Price = DefaultPrice
	cfg.Payment.LedgerBackend = "memory"
	cfg.Payment.LedgerTTL = 168 * time.Hour
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.RateLimit.RequestsPerMinute = 120
	cfg.RateLimit.Burst = 20
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Payment.Mode = "lightning" }},
		{"bad vault", func(c *Config) { c.Payment.VaultAddress = "0x1234" }},
		{"fractional price", func(c *Config) { c.Payment.Price = "0.0001" }},
		{"zero price", func(c *Config) { c.Payment.Price = "0" }},
		{"bad answer price", func(c *Config) { c.Payment.AnswerPrice = "abc" }},
		{"unknown network", func(c *Config) { c.Chain.Network = "solana" }},
		{"unknown ledger", func(c *Config) { c.Payment.LedgerBackend = "postgres" }},
		{"ephemeral forbidden", func(c *Config) { c.Wallet.AllowEphemeral = false }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"write timeout equals verify budget", func(c *Config) { c.Web.WriteTimeout = 60 * time.Second }},
		{"write timeout below verify budget", func(c *Config) { c.Chain.ReceiptTimeout = 2 * time.Minute }},
		{"bad trusted proxy", func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.1", "proxy.local"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.KindConfiguration))
		})
	}
}

func TestVerifyTimeout(t *testing.T) {
	cfg := defaults()
	assert.Equal(t, 60*time.Second, cfg.VerifyTimeout())

	cfg.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.1", "::1"}
	require.NoError(t, cfg.Validate())
}

func TestPrices(t *testing.T) {
	cfg := defaults()
	cfg.Payment.QuestionPrice = "200000000000000"

	prices, err := cfg.Prices()
	require.NoError(t, err)
	assert.Equal(t, "200000000000000", prices.Question.String())
	assert.Equal(t, DefaultPrice, prices.Answer.String())
}

func TestProtectedRoutes(t *testing.T) {
	cfg := defaults()
	payTo := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	routes, err := cfg.ProtectedRoutes(payTo)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.True(t, routes[0].Matches("POST", "/api/questions"))
	assert.Equal(t, "payForQuestion", routes[0].Label)
	assert.True(t, routes[1].Matches("POST", "/api/answers"))
	assert.Equal(t, "payFee", routes[1].Label)
	for _, r := range routes {
		assert.Equal(t, payTo, r.Recipient)
		assert.Equal(t, DefaultPrice, r.Price.String())
	}
}

func TestNetworkInfo(t *testing.T) {
	cfg := defaults()

	info, err := cfg.NetworkInfo()
	require.NoError(t, err)
	assert.Equal(t, network.NetworkHardhat, info.Network)

	cfg.Log.Env = "production"
	info, err = cfg.NetworkInfo()
	require.NoError(t, err)
	assert.Equal(t, network.NetworkBaseSepolia, info.Network)

	rpc, err := cfg.RPCURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.base.org", rpc)

	cfg.Chain.RPCEndpoint = "http://node:8545"
	rpc, err = cfg.RPCURL()
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", rpc)
}

func TestVault(t *testing.T) {
	cfg := defaults()
	assert.Nil(t, cfg.Vault())

	cfg.Payment.VaultAddress = "0x00000000000000000000000000000000000000bb"
	require.NotNil(t, cfg.Vault())
	assert.Equal(t, common.HexToAddress("0xbb"), *cfg.Vault())
}

func TestApplyLegacyEnv(t *testing.T) {
	env := map[string]string{
		"INTERNAL_WALLET_PRIVATE_KEY": "GENERATE_NEW",
		"VAULT_ADDRESS":               "0x00000000000000000000000000000000000000cc",
		"PORT":                        "8080",
		"NODE_ENV":                    "production",
		"CHAINOVERFLOW_LOG_ENV":       "staging",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := defaults()
	ApplyLegacyEnv(&cfg, lookup)

	assert.Equal(t, "GENERATE_NEW", cfg.Wallet.PrivateKey)
	assert.Equal(t, "0x00000000000000000000000000000000000000cc", cfg.Payment.VaultAddress)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.APIHost)

	// The prefixed key wins over the legacy name.
	assert.Equal(t, "development", cfg.Log.Env)
}
