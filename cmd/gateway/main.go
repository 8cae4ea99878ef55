// Command gateway runs the substrate gateway: the authoritative world that
// alliance agents connect to over HTTP.
//
// The gateway owns the tick, the segment store, and transfer routing.
// Agents register themselves and then drive their sync loops against the
// gateway's API; one tick advance per interval moves the whole world.
//
// # Configuration File
//
// Create a YAML file with gateway settings:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	admin_token: "admin:secret"
//	tick_interval: 1s
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "allysync"
//	  password: "secret"
//	  database: "allysync"
//
// Without a postgres section the world lives in memory and is lost on
// restart.
//
// # Endpoints
//
// Public (no auth):
//   - POST /substrate/agents - Agent registration
//   - GET /substrate/tick - Current tick
//   - /substrate/agents/{name}/... - Per-agent host surface
//
// Admin (basic auth when admin_token set):
//   - POST /substrate/tick/advance - Manual tick advance
//
// # Usage
//
//	go run ./cmd/gateway --config=gateway.yaml
//	go run ./cmd/gateway --addr=:8080 --tick=1s --admin-token="admin:secret"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awerar/allysync/api/httpserver"
	"github.com/awerar/allysync/cmd/common"
	"github.com/awerar/allysync/services"
)

type gatewayConfig struct {
	ListenAddr   string                   `yaml:"listen_addr"`
	MetricsAddr  string                   `yaml:"metrics_addr"`
	AdminToken   string                   `yaml:"admin_token"`
	TickInterval time.Duration            `yaml:"tick_interval"`
	EnablePprof  bool                     `yaml:"enable_pprof"`
	LogLevel     string                   `yaml:"log_level"`
	LogJSON      bool                     `yaml:"log_json"`
	Postgres     *services.PostgresConfig `yaml:"postgres"`
}

// routeFunc adapts a route-registering function to the server's
// RouteRegistrar interface.
type routeFunc func(chi.Router)

func (f routeFunc) RegisterRoutes(r chi.Router) { f(r) }

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		addr         = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr  = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		adminToken   = flag.String("admin-token", "", "Basic auth token for admin operations (user:pass)")
		tickInterval = flag.Duration("tick", time.Second, "World tick interval (0 disables the ticker)")
		enablePprof  = flag.Bool("pprof", false, "Enable pprof debugging API")
		logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logJSON      = flag.Bool("log-json", false, "JSON log output")
	)
	flag.Parse()

	cfg := &gatewayConfig{
		ListenAddr:   *addr,
		TickInterval: *tickInterval,
	}
	if *configPath != "" {
		if err := common.LoadYAML(*configPath, cfg); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *adminToken != "" {
		cfg.AdminToken = *adminToken
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logJSON {
		cfg.LogJSON = true
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *gatewayConfig) error {
	log, err := common.SetupLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}

	var store services.SubstrateStore
	if cfg.Postgres != nil {
		store, err = services.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		log.Info("using postgres persistence", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	} else {
		store = services.NewInMemoryStore()
		log.Warn("no postgres configured, world state is in memory only")
	}
	defer store.Close()

	substrate, err := services.NewSubstrate(log, store)
	if err != nil {
		return fmt.Errorf("restoring substrate: %w", err)
	}
	gateway := services.NewGateway(log, substrate, cfg.AdminToken)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, gateway, routeFunc(gateway.RegisterAdminRoutes))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TickInterval > 0 {
		gateway.StartTicker(ctx, cfg.TickInterval)
		log.Info("world ticker started", "interval", cfg.TickInterval)
	} else {
		log.Info("ticker disabled, advance ticks via the admin API")
	}
	if cfg.AdminToken == "" {
		log.Warn("no admin token configured, tick advance is unprotected")
	}

	srv.RunInBackground()
	log.Info("gateway running", "listenAddr", cfg.ListenAddr, "tick", substrate.Tick())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gateway")
	cancel()
	srv.Shutdown()
	return nil
}
