// Command provider runs the secret-share service of the computation providers.
//
// One process serves every provider index below /{vcp}/amphora and mocks the
// execution endpoint at POST /{vcp}/. Input masks and shares are kept in
// memory.
//
// # Configuration File
//
//	http_addr: ":8081"
//	metrics_addr: ":9091"
//	log:
//	  level: info
//	provider:
//	  prime: "198766463529478683931867765928436695041"
//	  r: "141515903391459779531506841503331516415"
//	  rinv: "133854242216446749056083838363708373830"
//	  result_id: "00000000-0000-0000-0000-000000000000"
//	  execution_delay: 2s
//
// # Usage
//
//	go run ./cmd/provider --config=provider.yaml
//	go run ./cmd/provider --addr=:8081 --execution-delay=0s
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/cmd/common"
	"github.com/glaciation-heu/sap-uc3/protocol"
	"github.com/glaciation-heu/sap-uc3/services"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		addr           = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr    = flag.String("metrics-addr", "", "Prometheus listen address")
		logLevel       = flag.String("log-level", "", "Log level: debug, info, warn, error")
		executionDelay = flag.Duration("execution-delay", -1, "Simulated execution time, config value if negative")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if isFlagSet("addr") || *configPath == "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *executionDelay >= 0 {
		cfg.Provider.ExecutionDelay = *executionDelay
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

	field, err := cfg.Provider.Field()
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	api := services.NewProviderAPI(protocol.NewShareEngine(field), services.ProviderAPIConfig{
		ResultID:       cfg.Provider.ResultID,
		ExecutionDelay: cfg.Provider.ExecutionDelay,
	}, log)

	srvCfg := common.ServerConfig(cfg, log)
	srvCfg.WriteTimeout = cfg.Provider.ExecutionDelay + 60*time.Second
	srv, err := httpserver.New(srvCfg, api)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.RunInBackground()
	log.Info("Provider started", "providers", protocol.NumProviders)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down provider")
	srv.Shutdown()
	return nil
}
