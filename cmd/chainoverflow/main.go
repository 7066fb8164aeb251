package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/langell/chainOverflow/middleware/server"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/langell/chainOverflow/pkg/config"
	"github.com/langell/chainOverflow/pkg/events"
	"github.com/langell/chainOverflow/pkg/gate"
	"github.com/langell/chainOverflow/pkg/handlers"
	"github.com/langell/chainOverflow/pkg/ledger"
	"github.com/langell/chainOverflow/pkg/logger"
	"github.com/langell/chainOverflow/pkg/metrics"
	"github.com/langell/chainOverflow/pkg/middleware"
	"github.com/langell/chainOverflow/pkg/store"
	"github.com/langell/chainOverflow/pkg/verifier"
	"github.com/langell/chainOverflow/pkg/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags.
var build = "develop"

func main() {

	// Configuration comes first since it decides how the logger is built.
	cfg, help, err := config.Load(build)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return
		}
		fmt.Println("config:", err)
		os.Exit(1)
	}

	// Construct the application logger.
	log, err := logger.New("CHAINOVERFLOW", cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log, cfg); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger, cfg config.Config) error {

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Wallet And Chain Support

	id, err := wallet.Load(cfg.Wallet.PrivateKey, cfg.Wallet.AllowEphemeral, log)
	if err != nil {
		return err
	}

	netInfo, err := cfg.NetworkInfo()
	if err != nil {
		return err
	}

	rpcURL, err := cfg.RPCURL()
	if err != nil {
		return err
	}

	provider, err := evm.NewProvider(rpcURL, netInfo.BigChainID(), id.PrivateKey(),
		evm.WithPollInterval(cfg.Chain.PollInterval),
		evm.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", rpcURL, err)
	}
	defer provider.Close()

	log.Infow("startup", "status", "chain provider ready", "network", netInfo.Name, "chainid", netInfo.ChainID, "rpc", rpcURL)

	// =========================================================================
	// Payment Support

	vault := cfg.Vault()
	if vault == nil {
		log.Warnw("startup", "status", "vault address not configured", "payTo", id.Address().Hex())
	}

	routes, err := cfg.ProtectedRoutes(id.Address())
	if err != nil {
		return err
	}

	v, err := verifier.New(cfg.Payment.Mode, provider, cfg.Chain.ReceiptTimeout)
	if err != nil {
		return err
	}
	log.Infow("startup", "status", "payment verification", "mode", v.Mode())

	var proofLedger ledger.Ledger
	if cfg.Payment.ReplayProtection {
		switch cfg.Payment.LedgerBackend {
		case "redis":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			rl, err := ledger.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Payment.LedgerTTL)
			cancel()
			if err != nil {
				return err
			}
			proofLedger = rl
		default:
			proofLedger = ledger.NewMemory(cfg.Payment.LedgerTTL, time.Minute)
		}
		defer proofLedger.Close()

		log.Infow("startup", "status", "replay protection enabled", "backend", cfg.Payment.LedgerBackend)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	g := gate.New(gate.Config{
		Routes:        routes,
		Vault:         vault,
		Issuer:        gate.NewIssuer(vault, netInfo),
		Verifier:      v,
		Ledger:        proofLedger,
		Metrics:       metrics.NewPrometheusRecorder(reg),
		Log:           log,
		VerifyTimeout: cfg.VerifyTimeout(),
	})

	// =========================================================================
	// Record Store

	st := store.New()
	if cfg.Store.Seed {
		n := st.Seed()
		log.Infow("startup", "status", "store seeded", "questions", n)
	}

	evts := events.New()

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, proxies...)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	ready := func(ctx context.Context) error {
		if v.Mode() != verifier.ModeOnChain {
			return nil
		}
		return provider.CheckChainID(ctx)
	}
	debugMux := handlers.DebugMux(build, log, reg, ready, handlers.PaymentStats{
		Limiter: limiter,
		Ledger:  proofLedger,
	})

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start API Service

	apiMux := handlers.APIMux(handlers.Config{
		Log:          log,
		Store:        st,
		Events:       evts,
		Payments:     server.NewL402Middleware(g, log),
		Limiter:      limiter,
		CORSOrigin:   cfg.Web.CORSOrigin,
		MaxBodyBytes: cfg.Web.MaxBodyBytes,
	})

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
