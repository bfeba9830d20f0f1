package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/brennv/arangodb/api"
	"github.com/brennv/arangodb/conf"
	log "github.com/brennv/arangodb/logger"
)

type arguments struct {
	ListenAddress        string        `help:"Address the AQL cursor API listens on" default:"127.0.0.1:8529"`
	MaxDispatcherThreads int           `help:"Maximum number of concurrent query worker threads" default:"16"`
	Log                  log.Config `help:"Logging configuration" embed:"" prefix:"log-"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func run() error {
	args := &arguments{}
	parser, err := kong.New(args)
	if err != nil {
		return err
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		return err
	}
	if err := args.Log.Configure(); err != nil {
		return err
	}
	cfg := &conf.Config{
		ListenAddress:        args.ListenAddress,
		MaxDispatcherThreads: args.MaxDispatcherThreads,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	server := api.NewServer(cfg.ListenAddress)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		if err := server.Stop(); err != nil {
			log.Errorf("failed to stop server: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	log.Infof("shutting down")
	return nil
}
