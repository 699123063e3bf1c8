// Package main is the entry point for ichiba, a NIP-90 data vending machine
// offering LLM inference paid over Lightning.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keanuklestil/ichiba/internal/config"
	"github.com/keanuklestil/ichiba/internal/runtime"
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("ichiba - NIP-90 Data Vending Machine")
	log.Println("====================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutting down...")
		cancel()
	}()

	log.Printf("[Runtime] bringing up service graph...")
	rt := <-runtime.BootstrapAsync(ctx, *cfg)
	log.Printf("[Runtime] ready at tier=%s", rt.Tier())

	providerEngine, err := rt.Provider()
	switch {
	case err == nil:
		if err := providerEngine.Start(ctx); err != nil {
			log.Printf("[Provider] failed to start: %v", err)
		} else {
			log.Printf("[Provider] listening for job requests")
			defer providerEngine.Stop()
		}
	default:
		log.Printf("[Provider] unavailable on this service graph (%s tier): %v", rt.Tier(), err)
	}

	log.Println()
	log.Println("Ready.")

	<-ctx.Done()

	if pool, err := rt.Pool(); err == nil {
		pool.Close()
	}
	log.Println("Shutdown complete")
}
