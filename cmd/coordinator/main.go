// Command coordinator runs the collaboration coordinator.
//
// The coordinator registers collaborations and their parties, waits until
// every input party confirmed its upload and then starts the MPC program on
// all computation providers. Output parties are notified once the result is
// available.
//
// # Configuration File
//
//	http_addr: ":8080"
//	metrics_addr: ":9090"
//	log:
//	  level: info
//	  json: false
//	database:            # omit host to keep state in memory
//	  host: localhost
//	  port: 5432
//	  user: postgres
//	  password: postgres
//	  database: coordinator
//	  ssl_mode: disable
//	execution:
//	  workers: 4
//	  queue_size: 256
//	  timeout: 10m
//	engine:
//	  request_timeout: 10m
//	notifier:
//	  timeout: 10s
//	  concurrency: 8
//
// # Usage
//
//	go run ./cmd/coordinator --config=coordinator.yaml
//	go run ./cmd/coordinator --addr=:8080 --db-host=localhost
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/cmd/common"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus listen address")
		dbHost      = flag.String("db-host", "", "PostgreSQL host, in-memory store if empty")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		pprof       = flag.Bool("pprof", false, "Enable pprof under /debug")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *dbHost != "" {
		cfg.Database.Host = *dbHost
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *pprof {
		cfg.EnablePprof = true
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config) error {
	log, err := common.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	store, err := common.NewStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := coordinator.NewOrchestrator(
		store,
		services.NewEphemeralEngine(cfg.Engine.RequestTimeout, log),
		services.NewHTTPNotifier(cfg.Notifier, log),
		log,
		cfg.Execution,
	)
	orch.Start(ctx)
	defer orch.Stop()

	srvCfg := common.ServerConfig(cfg, log)
	srvCfg.ReadinessCheck = orch.Ready
	srv, err := httpserver.New(srvCfg, services.NewCoordinatorAPI(orch, log))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down coordinator")
	srv.Shutdown()
	return nil
}
