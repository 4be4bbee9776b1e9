// Package app assembles the lottery keeper: ledger gateway, draw
// orchestrator, health monitor, resolver, and the HTTP surface, all
// lifecycle-managed through the system manager.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hastrology/lottery-service/internal/app/httpapi"
	"github.com/hastrology/lottery-service/internal/app/services/draw"
	"github.com/hastrology/lottery-service/internal/app/services/health"
	"github.com/hastrology/lottery-service/internal/app/services/resolver"
	"github.com/hastrology/lottery-service/internal/app/storage"
	"github.com/hastrology/lottery-service/internal/app/storage/memory"
	"github.com/hastrology/lottery-service/internal/app/system"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/internal/config"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Rounds    storage.RoundStore
	Attempts  storage.AttemptStore
	Incidents storage.IncidentStore
}

// Application ties the lottery services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Gateway  *chain.Gateway
	Draw     *draw.Service
	Health   *health.Monitor
	Resolver *resolver.Service
	Server   *httpapi.Server
}

// New builds a fully initialised application from the configuration.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New(0)
	if stores.Rounds == nil {
		stores.Rounds = mem
	}
	if stores.Attempts == nil {
		stores.Attempts = mem
	}
	if stores.Incidents == nil {
		stores.Incidents = mem
	}

	gateway, err := buildGateway(cfg.Ledger, log)
	if err != nil {
		return nil, err
	}

	drawService := draw.New(gateway, stores.Attempts, stores.Rounds, log.WithField("component", "draw"), draw.Options{
		PollAttempts: cfg.Draw.PollAttempts,
		PollInterval: cfg.Draw.PollInterval,
	})

	monitor := health.New(gateway, drawService, stores.Incidents, log.WithField("component", "health"), health.Options{
		Interval: cfg.Health.Interval,
	})

	var profiles resolver.ProfileLookup
	if cfg.Profile.BaseURL != "" {
		profiles = resolver.NewProfileClient(cfg.Profile.BaseURL, cfg.Profile.APIKey, 5*time.Second)
	} else {
		log.Warn("profile service not configured; winners display bare addresses")
	}

	var cache resolver.WinnerCache
	if cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr, DB: cfg.Storage.RedisDB})
		cache = resolver.NewRedisWinnerCache(client, 0)
		log.WithField("addr", cfg.Storage.RedisAddr).Info("using redis winner cache")
	} else {
		cache = resolver.NewMemoryWinnerCache()
	}

	resolverService := resolver.New(gateway, profiles, cache, log.WithField("component", "resolver"), resolver.Options{})

	manager := system.NewManager()

	scheduler, err := draw.NewScheduler(drawService, log.WithField("component", "scheduler"), cfg.Draw.Time, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	handler := httpapi.NewHandler(drawService, resolverService, gateway,
		stores.Rounds, stores.Attempts, stores.Incidents,
		log.WithField("component", "httpapi"), httpapi.Config{
			AdminSecret:  cfg.HTTP.AdminSecret,
			TriggerRate:  cfg.HTTP.TriggerRate,
			TriggerBurst: cfg.HTTP.TriggerBurst,
		})
	server := httpapi.NewServer(cfg.HTTP.Listen, handler, log.WithField("component", "httpapi"))

	for _, svc := range []system.Service{scheduler, monitor, server} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Gateway:  gateway,
		Draw:     drawService,
		Health:   monitor,
		Resolver: resolverService,
		Server:   server,
	}, nil
}

func buildGateway(cfg config.LedgerConfig, log *logger.Logger) (*chain.Gateway, error) {
	programID, err := chain.ParseAddress(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}

	var oracleQueue chain.Address
	if cfg.OracleQueue != "" {
		oracleQueue, err = chain.ParseAddress(cfg.OracleQueue)
		if err != nil {
			return nil, fmt.Errorf("parse oracle queue: %w", err)
		}
	}

	var signer chain.Signer
	if cfg.AuthorityKeyPath != "" {
		keypair, err := chain.LoadKeypair(cfg.AuthorityKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load authority key: %w", err)
		}
		signer = keypair
		log.WithField("authority", keypair.PublicKey().Short()).Info("authority key loaded")
	} else {
		log.Warn("no authority key configured; running read-only")
	}

	client, err := chain.NewClient(chain.Config{RPCURL: cfg.RPCURL, Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("build rpc client: %w", err)
	}

	return chain.NewGateway(chain.GatewayConfig{
		Client:          client,
		ProgramID:       programID,
		OracleQueue:     oracleQueue,
		Signer:          signer,
		Log:             log.WithField("component", "gateway"),
		ConfirmAttempts: cfg.ConfirmAttempts,
		ConfirmInterval: cfg.ConfirmInterval,
	})
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
