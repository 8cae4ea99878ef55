package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

func main() {
	members := flag.Int("members", 4, "number of member agents")
	tickInterval := flag.Duration("tick", 200*time.Millisecond, "world tick interval")
	reportInterval := flag.Duration("report", 5*time.Second, "status report interval")
	keyLifetime := flag.Uint64("key-lifetime", 300, "shared key lifetime in ticks")
	lookahead := flag.Uint64("rotation-lookahead", 50, "ticks before expiry to pre-stage the replacement key")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	config := &OrchestratorConfig{
		NumMembers:        *members,
		TickInterval:      *tickInterval,
		ReportInterval:    *reportInterval,
		KeyLifetime:       *keyLifetime,
		RotationLookahead: *lookahead,
	}

	orchestrator := NewOrchestrator(log, config)
	if err := orchestrator.Deploy(); err != nil {
		fmt.Printf("Deployment failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nAlliance sync demo running...")
	fmt.Printf("  Members: %d (+1 leader)\n", config.NumMembers)
	fmt.Printf("  Tick interval: %v\n", config.TickInterval)
	fmt.Printf("  Key lifetime: %d ticks\n", config.KeyLifetime)
	fmt.Println("\nPress Ctrl+C to shutdown...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	if err := orchestrator.Shutdown(); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
	fmt.Println("Deployment stopped.")
}
