// Command gateway launches the Gate.io connectivity adapter runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantarc/gateio-gateway/config"
	"github.com/quantarc/gateio-gateway/internal/gateio"
	"github.com/quantarc/gateio-gateway/internal/infra/persistence/migrations"
	"github.com/quantarc/gateio-gateway/internal/infra/persistence/postgres"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
	"github.com/quantarc/gateio-gateway/internal/sessions"
	"github.com/quantarc/gateio-gateway/lib/telemetry"
)

const (
	defaultConfigPath        = "config/gateway.yaml"
	gatewayLoggerPrefix      = "gateway "
	connectTimeout           = 30 * time.Second
	migrationTimeout         = 30 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath, account := parseFlags()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, gatewayLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
	observability.SetLogger(observability.NewStdLogger(logger))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: env=%s", cfg.Environment)

	endpoints, ok := cfg.ResolveEndpoints()
	if !ok {
		logger.Fatalf("no endpoints configured for environment %q", cfg.Environment)
	}

	providers, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	observability.SetMetrics(telemetry.NewCollector(providers.MeterProvider))
	if cfg.Telemetry.OTLPEndpoint != "" {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}

	var (
		pool   *pgxpool.Pool
		mirror gateio.MirrorStore
	)
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		migrateCtx, migrateCancel := context.WithTimeout(ctx, migrationTimeout)
		if err := migrations.Apply(migrateCtx, dsn, logger); err != nil {
			migrateCancel()
			logger.Fatalf("apply migrations: %v", err)
		}
		migrateCancel()

		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Fatalf("open database pool: %v", err)
		}
		mirror = postgres.NewMirrorStore(pool)
		logger.Printf("order mirror store enabled")
	} else {
		logger.Printf("no database configured; order mirroring disabled")
	}

	registry := sessions.NewRegistry()
	authenticate := cfg.Credentials.Key != "" && cfg.Credentials.Secret != ""

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	adapter, err := gateio.New(connectCtx, gateio.AdapterConfig{
		Account:      account,
		Key:          cfg.Credentials.Key,
		Secret:       cfg.Credentials.Secret,
		Passphrase:   cfg.Credentials.Passphrase,
		Authenticate: authenticate,
		SimTrading:   cfg.SimTrading(),
		Endpoints:    endpoints,
		Callbacks: schema.Callbacks{
			OperationResponse: func(result string, detail schema.EventDetail) {
				logger.Printf("operation response: result=%s label=%s status=%d message=%s",
					result, detail.Label, detail.Status, detail.Message)
			},
			GatewayDisconnect: func(exchange, acct string) {
				logger.Printf("gateway disconnect: exchange=%s account=%s", exchange, acct)
				cancel()
			},
		},
		Registry: registry,
		Mirror:   mirror,
	})
	connectCancel()
	if err != nil {
		logger.Fatalf("initialise adapter: %v", err)
	}
	logger.Printf("adapter connected: authenticate=%v sim_trading=%v status=%s",
		authenticate, adapter.SimTrading(), adapter.Status())

	logger.Print("gateway started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownStart := time.Now()
	adapter.Logout()
	adapter.Purge()
	if pool != nil {
		pool.Close()
	}

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer telemetryCancel()
	if err := telemetryShutdown(telemetryCtx); err != nil {
		logger.Printf("shutdown: telemetry failed: %v", err)
	}

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (configPath, account string) {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to gateway configuration file (default: %s)", defaultConfigPath))
	acct := flag.String("account", "default", "Account identifier for the adapter session")
	flag.Parse()
	if *cfgPath == "" {
		return filepath.Clean(defaultConfigPath), *acct
	}
	return *cfgPath, *acct
}
