package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mdtransclude/config"
	"mdtransclude/logging"
	"mdtransclude/server"
)

func main() {
	var (
		configPath = flag.String("config", "mdtransclude.yaml", "YAML config file (optional)")
		host       = flag.String("host", "localhost", "Host to bind to")
		port       = flag.Int("port", 0, "Port to bind to (0 for auto-selection)")
		file       = flag.String("file", "", "Specific markdown file to serve (optional)")
		dir        = flag.String("dir", ".", "Directory to serve")
		livereload = flag.Bool("livereload", true, "Enable live reload (default: true)")
		format     = flag.String("format", "html", "Output format used for wildcard includes")
		strict     = flag.Bool("strict", false, "Fail a page on the first transclusion problem")
		logLevel   = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	log.SetFlags(0)

	// The config file is optional unless named explicitly.
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg, err := config.Load(*configPath, !explicit["config"])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line win over the file.
	if explicit["host"] {
		cfg.Host = *host
	}
	if explicit["port"] {
		cfg.Port = *port
	}
	if explicit["file"] {
		cfg.File = *file
	}
	if explicit["dir"] {
		cfg.RootDir = *dir
	}
	if explicit["livereload"] {
		cfg.EnableLiveReload = *livereload
	}
	if explicit["format"] {
		cfg.Format = *format
	}
	if explicit["strict"] {
		cfg.Transclusion.Strict = *strict
	}
	if explicit["log-level"] {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	root, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger := root.GetLogger("server")

	// Resolve absolute path for directory
	cfg.RootDir, err = filepath.Abs(cfg.RootDir)
	if err != nil {
		log.Fatalf("Failed to resolve directory path: %v", err)
	}
	if info, err := os.Stat(cfg.RootDir); err != nil || !info.IsDir() {
		log.Fatalf("Directory does not exist: %s", cfg.RootDir)
	}

	if cfg.Port == 0 {
		cfg.Port = findAvailablePort(cfg.Host)
		if cfg.Port == 0 {
			log.Fatal("Failed to find an available port")
		}
	}

	srv := server.NewServer(cfg, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		srv.Stop()
		os.Exit(0)
	}()

	logger.Info("serving",
		"root", cfg.RootDir,
		"entry", cfg.File,
		"url", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		"strict", cfg.Transclusion.Strict,
	)
	log.Println("Press Ctrl+C to stop")

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// findAvailablePort scans for an available port starting from 8080
func findAvailablePort(host string) int {
	for port := 8080; port < 65535; port++ {
		addr := fmt.Sprintf("%s:%d", host, port)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return 0
}
