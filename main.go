package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mickaelmarchal/exifstream/internal"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. The users configuration file
// is loaded, all services are constructed, and the process runs until
// an interrupt/termination signal is received.
func main() {
	configPath := flag.String("config", internal.DefaultConfigPath(), "The path to the yaml configuration file")
	debug := flag.Bool("debug", false, "Enable verbose logging output")
	flag.Parse()

	if *debug {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	}

	config := internal.ExifstreamConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "%s\n", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Exifstream stopped: %s\n", err.Error())
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Exifstream shutdown complete\n")
}
