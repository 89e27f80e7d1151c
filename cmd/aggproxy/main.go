package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	aggproxy "github.com/cention/aggproxy"
	"github.com/cention/aggproxy/internal/config"
	"github.com/cention/aggproxy/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/routes.yaml", "Path to route configuration file")
	addr := flag.String("addr", ":8080", "Address to listen on")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	checkURL := flag.String("check-url", "", "With -validate, also report whether this URL would match a configured route")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aggproxy %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *validateOnly {
		fmt.Println("configuration is valid")
		if *checkURL != "" {
			pipeline, err := aggproxy.NewPipeline(cfg, nil)
			if err != nil {
				log.Fatalf("failed to compile routes: %v", err)
			}
			fmt.Printf("%s matches a configured route: %v\n", *checkURL, pipeline.MatchesRoute(*checkURL))
		}
		os.Exit(0)
	}

	zapLogger, closer, err := logging.New(logging.Config{Level: *logLevel, Output: "stdout"})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	logging.SetGlobal(zapLogger)
	if closer != nil {
		defer closer.Close()
	}

	logging.Info(fmt.Sprintf("starting aggproxy %s", version))
	logging.Info(fmt.Sprintf("configuration loaded from %s (%d routes)", *configPath, len(cfg.Routes)))

	pipeline, err := aggproxy.NewPipeline(cfg, nil)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		log.Fatalf("failed to start config watcher: %v", err)
	}

	serverCfg := aggproxy.DefaultServerConfig
	serverCfg.Addr = *addr
	server := aggproxy.NewServer(pipeline, watcher, serverCfg)

	if err := server.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
