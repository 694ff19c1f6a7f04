package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"quill/internal/config"
	"quill/internal/daemonrun"
)

func main() {
	var configPath string
	var logLevel string
	var development bool

	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.BoolVar(&development, "dev", false, "enable development logging output")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quilld: load config: %v\n", err)
		os.Exit(1)
	}

	opts := daemonrun.Options{
		LogLevel:    logLevel,
		Development: development,
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "quilld: %v\n", err)
		os.Exit(1)
	}
}
