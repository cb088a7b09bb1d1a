package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/api"
	"github.com/rohitjsoftype/terminology-api/config"
	"github.com/rohitjsoftype/terminology-api/deps"
)

var (
	version = "v0.0.0"
)

func main() {
	cfg := config.New(version)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("unable to validate config: %s", err)
	}

	d, err := deps.New(cfg)
	if err != nil {
		log.Fatalf("Could not setup dependencies: %s", err)
	}

	// Start queued-import consumers (no-op unless rabbit is enabled)
	if d.ProcessorService != nil {
		if err := d.ProcessorService.StartConsumers(); err != nil {
			log.Fatalf("unable to start import consumers: %s", err)
		}
	}

	// Create API server
	a, err := api.New(cfg, d, version)
	if err != nil {
		log.Fatalf("unable to create API instance: %s", err)
	}

	go func() {
		if err := a.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			log.Fatalf("API server run() failed: %s", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")

	d.ShutdownCancel()

	// Wait for the publisher to drain when it was running
	if d.PublisherService != nil {
		<-d.PublisherDoneCh
	}
}
