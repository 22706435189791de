// Package main records one Dendrite submission from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	submitcmd "github.com/louisbranch/dendrite/internal/cmd/submit"
	"github.com/louisbranch/dendrite/internal/platform/config"
)

func main() {
	cfg, err := submitcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitWithCode(2, "%v", err)
	}
	log.SetPrefix("[SUBMIT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := submitcmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, submitcmd.ErrUsage) {
			config.ExitWithCode(2, "%v", err)
		}
		if errors.Is(err, submitcmd.ErrRejected) {
			config.ExitWithCode(3, "%v", err)
		}
		config.Exitf("%v", err)
	}
}
