package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/chain"
	"github.com/anastasiarods/moxie-alerts-bot/internal/config"
	"github.com/anastasiarods/moxie-alerts-bot/internal/farcaster"
	"github.com/anastasiarods/moxie-alerts-bot/internal/filter"
	"github.com/anastasiarods/moxie-alerts-bot/internal/identity"
	"github.com/anastasiarods/moxie-alerts-bot/internal/interp"
	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
	"github.com/anastasiarods/moxie-alerts-bot/internal/message"
	"github.com/anastasiarods/moxie-alerts-bot/internal/pipeline"
	intRedis "github.com/anastasiarods/moxie-alerts-bot/internal/redis"
	"github.com/anastasiarods/moxie-alerts-bot/internal/web"
)

// warmupTxHash is a known historical trade used to prime the decoder's
// contract caches before the subscription starts delivering live logs
const warmupTxHash = "0x6dd5ffecfe9d6e2d63fe5ed7b0f3b929dc3fcd4e9a00c8fa1064be65306a3f71"

// Flags
var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

// Application holds all application components
type Application struct {
	cfg          *config.Config
	log          logger.Logger
	redisClient  *intRedis.Client
	deduplicator *intRedis.Deduplicator
	decoder      *interp.Client
	resolver     *identity.Resolver
	publisher    *farcaster.Publisher
	channels     *farcaster.ChannelClient
	receipts     *chain.ReceiptWaiter
	wsClient     *chain.Client
	subManager   *chain.SubscriptionManager
	pipeline     *pipeline.Pipeline
	webServer    *web.Server
}

func main() {
	flag.Parse()

	if v := os.Getenv("CONFIG_PATH"); v != "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logger.F("error", err))
	}

	log := initLogger(cfg)
	log.Info("starting moxie-alerts-bot",
		logger.F("app", cfg.App.Name),
		logger.F("env", cfg.App.Environment),
		logger.F("chain_id", cfg.RPC.ChainID),
		logger.F("contract", cfg.RPC.ContractAddress),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &Application{
		cfg: cfg,
		log: log,
	}

	if err := app.initialize(); err != nil {
		log.Fatal("failed to initialize application", logger.F("error", err))
	}

	if err := app.start(ctx); err != nil {
		log.Fatal("failed to start application", logger.F("error", err))
	}

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Info("shutdown signal received", logger.F("signal", sig.String()))

	app.shutdown(cancel)
}

// initialize wires all application components
func (app *Application) initialize() error {
	cfg := app.cfg
	log := app.log

	// Redis is optional; without it the bot runs single-instance with no
	// dedup across resubscribes
	if cfg.IsRedisEnabled() {
		redisClient, err := intRedis.NewClient(intRedis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			return err
		}
		app.redisClient = redisClient
		app.deduplicator = intRedis.NewDeduplicator(redisClient, log, intRedis.DeduplicatorConfig{
			LockTTL:      cfg.Redis.LockTTL,
			ProcessedTTL: cfg.Redis.ProcessedTTL,
		})
		log.Info("transaction dedup enabled",
			logger.F("instance_id", app.deduplicator.GetInstanceID()),
		)
	} else {
		log.Warn("redis not configured, transaction dedup disabled")
	}

	app.decoder = interp.NewClient(interp.Config{
		Endpoint: cfg.Decoder.Endpoint,
		Timeout:  cfg.Decoder.Timeout,
	}, log)

	app.resolver = identity.NewResolver(identity.Config{
		Endpoint:        cfg.Airstack.Endpoint,
		APIKey:          cfg.Airstack.APIKey,
		CacheTTL:        cfg.Airstack.CacheTTL,
		CacheMaxEntries: cfg.Airstack.CacheMaxEntries,
	}, log)

	publisher, err := farcaster.NewPublisher(farcaster.Config{
		HubURL:           cfg.Farcaster.HubURL,
		HubAPIKey:        cfg.Farcaster.HubAPIKey,
		SignerPrivateKey: cfg.Farcaster.SignerPrivateKey,
		AccountFID:       cfg.Farcaster.AccountFID,
		RateLimit:        cfg.Farcaster.RateLimit,
		Timeout:          cfg.Farcaster.Timeout,
		RetryCount:       cfg.Farcaster.RetryCount,
	}, log)
	if err != nil {
		return err
	}
	app.publisher = publisher

	app.channels = farcaster.NewChannelClient("", cfg.Farcaster.Timeout, log)

	// Receipt polling goes over HTTP when configured, otherwise over the
	// same websocket endpoint
	receiptURL := cfg.RPC.HTTPURL
	if receiptURL == "" {
		receiptURL = cfg.RPC.WSURL
	}
	receipts, err := chain.NewReceiptWaiter(receiptURL, chain.ReceiptConfig{}, log)
	if err != nil {
		return err
	}
	app.receipts = receipts

	app.pipeline = pipeline.New(
		pipeline.Config{
			ChainID:       cfg.RPC.ChainID,
			FrameEndpoint: cfg.Farcaster.FrameEndpoint,
		},
		app.receipts,
		app.decoder,
		app.decoder,
		filter.New(filter.Config{MinMoxieAmount: cfg.Alerts.MinMoxieAmount}, log),
		app.resolver,
		message.NewBuilder(message.Config{
			WhaleThreshold: cfg.Alerts.WhaleThreshold,
			Precision:      cfg.Alerts.Precision,
		}, log),
		app.channels,
		app.publisher,
		dedupOrNil(app.deduplicator),
		log,
	)

	app.wsClient = chain.NewClient(chain.ClientConfig{
		URL:               cfg.RPC.WSURL,
		ReconnectInterval: cfg.Subscription.ReconnectInterval,
		MaxRetries:        cfg.Subscription.MaxRetries,
		WriteTimeout:      cfg.Subscription.WriteTimeout,
		ReadTimeout:       cfg.Subscription.ReadTimeout,
	}, log)

	app.subManager = chain.NewSubscriptionManager(chain.ManagerConfig{
		ContractAddress:  cfg.RPC.ContractAddress,
		Topics:           cfg.RPC.Topics,
		WatchdogInterval: cfg.Subscription.WatchdogInterval,
	}, app.wsClient, app.pipeline.Process, log)

	app.wsClient.SetHandler(app.subManager.HandleLog)
	app.wsClient.SetReconnectHook(app.subManager.OnReconnect)

	app.webServer = web.NewServer(web.Config{Port: cfg.Web.Port}, app.healthStatus, log)

	return nil
}

// dedupOrNil avoids storing a typed nil in the pipeline's interface field
func dedupOrNil(d *intRedis.Deduplicator) pipeline.Deduper {
	if d == nil {
		return nil
	}
	return d
}

// healthStatus reports runtime state on the health endpoint
func (app *Application) healthStatus() map[string]interface{} {
	status := map[string]interface{}{
		"subscription": app.subManager.State().String(),
		"ws_connected": app.wsClient.IsConnected(),
	}
	if app.redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status["redis"] = app.redisClient.Health(ctx)["status"]
	}
	return status
}

// start brings up the web server, warms the decoder, and opens the
// subscription
func (app *Application) start(ctx context.Context) error {
	go func() {
		if err := app.webServer.Start(); err != nil {
			app.log.Error("web server error", logger.F("error", err))
		}
	}()

	// Warm up the decoder with a known transaction; a cold decoder makes
	// the first live alert slow but is not fatal
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := app.decoder.Decode(warmCtx, app.cfg.RPC.ChainID, warmupTxHash); err != nil {
		app.log.Warn("decoder warm-up failed", logger.F("error", err))
	}

	if err := app.wsClient.Start(ctx); err != nil {
		return err
	}

	if err := app.subManager.Start(ctx); err != nil {
		return err
	}

	app.log.Info("application started successfully")
	return nil
}

// shutdown performs graceful shutdown of all components
func (app *Application) shutdown(cancel context.CancelFunc) {
	app.log.Info("starting graceful shutdown")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if app.subManager != nil {
		if err := app.subManager.Stop(shutdownCtx); err != nil {
			app.log.Error("error stopping subscription", logger.F("error", err))
		}
	}

	if app.wsClient != nil {
		if err := app.wsClient.Close(); err != nil {
			app.log.Error("error closing websocket", logger.F("error", err))
		}
	}

	if app.receipts != nil {
		app.receipts.Close()
	}

	if app.webServer != nil {
		if err := app.webServer.Shutdown(shutdownCtx); err != nil {
			app.log.Error("error shutting down web server", logger.F("error", err))
		}
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.log.Error("error closing redis client", logger.F("error", err))
		}
	}

	app.log.Info("graceful shutdown completed")
}

// initLogger initializes the logger based on configuration
func initLogger(cfg *config.Config) logger.Logger {
	var output = os.Stdout
	if cfg.Logger.Output == "stderr" {
		output = os.Stderr
	}

	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Format:     cfg.Logger.Format,
		Output:     output,
		TimeFormat: cfg.Logger.TimeFormat,
		AppName:    cfg.App.Name,
	})

	logger.SetGlobal(log)
	return log
}
