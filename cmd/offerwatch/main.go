package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"offerwatch/internal/app"
	"offerwatch/internal/config"
	"offerwatch/internal/logging"
)

type options struct {
	Config   string `short:"c" long:"config" description:"Path to YAML configuration file"`
	Once     bool   `long:"once" description:"Run a single monitoring pass and exit"`
	LogLevel string `long:"log-level" description:"Override log level (debug, info, warn, error)"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	var cfg config.Config
	if opts.Config != "" {
		loaded, err := config.LoadFile(opts.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", opts.Config, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if opts.Once {
		err = application.RunOnce(ctx)
	} else {
		err = application.Run(ctx)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
