// Package main starts the Dendrite processor process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	processorcmd "github.com/louisbranch/dendrite/internal/cmd/processor"
	"github.com/louisbranch/dendrite/internal/platform/config"
)

func main() {
	cfg, err := processorcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitWithCode(2, "parse flags: %v", err)
	}
	log.SetPrefix("[PROCESSOR] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := processorcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("processor: %v", err)
	}
}
