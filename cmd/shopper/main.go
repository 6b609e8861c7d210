// Package main runs one scripted purchase from the terminal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	shoppercmd "github.com/louisbranch/agentpay/internal/cmd/shopper"
)

func main() {
	cfg, err := shoppercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SHOPPER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := shoppercmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("purchase failed: %v", err)
	}
}
