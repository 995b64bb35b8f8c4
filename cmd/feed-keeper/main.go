package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Magicwander/OKX-submission-complete/pkg/config"
	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keeper"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/aggregator"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/api"
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
	"github.com/Magicwander/OKX-submission-complete/pkg/version"

	// Import sources to register them
	_ "github.com/Magicwander/OKX-submission-complete/pkg/server/sources/cex"
	_ "github.com/Magicwander/OKX-submission-complete/pkg/server/sources/priceserver"
	_ "github.com/Magicwander/OKX-submission-complete/pkg/server/sources/rest"
	_ "github.com/Magicwander/OKX-submission-complete/pkg/server/sources/websocket"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env-file", "", "Path to a .env file (default: .env if present)")
	showVer    = flag.Bool("version", false, "Show version and exit")
	keeperOnly = flag.Bool("keeper", false, "Run the keeper only")
	apiOnly    = flag.Bool("api", false, "Run the read API only")
	dryRun     = flag.Bool("dry-run", false, "Decide and log updates without submitting them")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("feed-keeper version %s\n", version.Version)
		os.Exit(0)
	}

	var envErr error
	if *envFile != "" {
		envErr = config.LoadEnv(*envFile)
	} else {
		envErr = config.LoadEnv()
	}
	if envErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", envErr)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *keeperOnly {
		cfg.Mode = config.ModeKeeper
	} else if *apiOnly {
		cfg.Mode = config.ModeAPI
	}
	if *dryRun {
		cfg.Keeper.DryRun = true
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.FileOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting feed-keeper", "version", version.Version, "mode", cfg.Mode, "ledger", cfg.Ledger.Type)
	if cfg.IsKeeperMode() && cfg.Keeper.DryRun {
		logger.Warn("DRY RUN MODE ENABLED - Updates will be decided but NOT submitted")
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	app.shutdown(shutdownCtx)
	logger.Info("Shutdown complete")
}

// app holds the components selected by the configured mode.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	sources []sources.MarketDataSource
	local   *ledger.LocalLedger
	client  ledger.Client
	keeper  *keeper.Keeper
	server  *api.Server
	ws      *api.WebSocketServer
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openLedger(); err != nil {
		return nil, err
	}

	if cfg.IsKeeperMode() {
		if err := a.buildKeeper(ctx); err != nil {
			a.shutdown(ctx)
			return nil, err
		}
	}

	if cfg.IsAPIMode() {
		a.buildAPI()
	}
	return a, nil
}

func (a *app) openLedger() error {
	switch a.cfg.Ledger.Type {
	case config.LedgerHTTP:
		client, err := ledger.NewHTTPClient(a.cfg.Ledger.HTTPConfig(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to create ledger client: %w", err)
		}
		a.client = client
		a.logger.Info("Using remote ledger", "endpoints", a.cfg.Ledger.HTTP.Endpoints)
	default:
		local, err := ledger.OpenLocal(a.cfg.Ledger.LocalConfig(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to open local ledger: %w", err)
		}
		a.local = local
		a.client = local
	}
	return nil
}

// buildSources creates every enabled source, skipping the ones that fail.
func (a *app) buildSources(ctx context.Context) (map[string]sources.MarketDataSource, error) {
	built := make(map[string]sources.MarketDataSource)
	for _, sourceCfg := range a.cfg.EnabledSources() {
		a.logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name)

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config, a.logger)
		if err != nil {
			a.logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}
		if runner, ok := source.(sources.Runner); ok {
			if err := runner.Start(ctx); err != nil {
				a.logger.Warn("Failed to start source", "source", source.Name(), "error", err)
				continue
			}
		}
		built[sourceCfg.Name] = source
		a.sources = append(a.sources, source)
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("no sources available")
	}
	return built, nil
}

func (a *app) buildKeeper(ctx context.Context) error {
	privateKey, mnemonic, err := a.cfg.Signer.Secrets()
	if err != nil {
		return err
	}
	signer, err := keystore.Load(privateKey, mnemonic, a.cfg.Signer.HDPath)
	if err != nil {
		return fmt.Errorf("failed to load signer: %w", err)
	}
	a.logger.Info("Loaded authority key", "address", signer.Address().Hex())

	built, err := a.buildSources(ctx)
	if err != nil {
		return err
	}

	agg, err := aggregator.New(a.cfg.Aggregator.AggregatorConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}

	pairs := make([]keeper.Pair, 0, len(a.cfg.Pairs))
	for i := range a.cfg.Pairs {
		pc := &a.cfg.Pairs[i]
		p := keeper.Pair{
			Pair:   pc.TradingPair(),
			Params: pc.Params.FeedParams(),
			Symbol: pc.Symbol,
		}
		if len(pc.Sources) == 0 {
			p.Sources = append(p.Sources, a.sources...)
		}
		for _, name := range pc.Sources {
			if s, ok := built[name]; ok {
				p.Sources = append(p.Sources, s)
			}
		}
		if len(p.Sources) == 0 {
			return fmt.Errorf("pair %s: none of its sources started", pc.ID)
		}
		pairs = append(pairs, p)
	}

	k, err := keeper.New(a.cfg.Keeper.KeeperConfig(a.cfg.ProgramAddress()), pairs, agg, a.client, signer, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create keeper: %w", err)
	}
	a.keeper = k

	if a.cfg.Keeper.ShouldBootstrap() {
		if err := k.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
	}
	return nil
}

func (a *app) buildAPI() {
	feeds := make(map[string]common.Address, len(a.cfg.Pairs))
	program := a.cfg.ProgramAddress()
	for _, p := range a.cfg.Pairs {
		feeds[p.ID] = feed.DeriveAddress(program, p.ID)
	}

	a.server = api.NewServer(api.Options{
		Addr:         a.cfg.API.Addr,
		ReadTimeout:  a.cfg.API.ReadTimeout.ToDuration(),
		WriteTimeout: a.cfg.API.WriteTimeout.ToDuration(),
	}, a.client, feeds, a.logger)

	if a.keeper != nil {
		a.server.SetKeeper(a.keeper)
	}
	if a.cfg.Ledger.Serve && a.local != nil {
		a.server.SetLedger(ledger.NewHandler(a.local))
		a.logger.Info("Serving ledger API", "addr", a.cfg.API.Addr)
	}
	if a.cfg.API.WebSocket {
		a.ws = api.NewWebSocketServer(a.logger)
		a.server.SetWebSocketServer(a.ws)
		if a.keeper != nil {
			a.keeper.OnUpdate(a.ws.Publish)
		}
	}
}

// run starts the keeper and blocks on the API server, or on ctx when the
// API is disabled.
func (a *app) run(ctx context.Context) error {
	if a.keeper != nil {
		if err := a.keeper.Start(ctx); err != nil {
			return err
		}
	}
	if a.ws != nil {
		go a.ws.Run(ctx)
	}
	if a.server != nil {
		return a.server.Start()
	}
	<-ctx.Done()
	return nil
}

func (a *app) shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}
	if a.keeper != nil {
		_ = a.keeper.Stop()
	}
	for _, s := range a.sources {
		if runner, ok := s.(sources.Runner); ok {
			if err := runner.Stop(); err != nil {
				a.logger.Warn("Failed to stop source", "source", s.Name(), "error", err)
			}
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("Failed to close ledger", "error", err)
		}
	}
}
