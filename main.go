package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"runitdb/internal/cli"
)

var BuildVersion = "dev"

func main() {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(rootCtx, BuildVersion, os.Args[1:], os.Stdout, os.Stderr)
	stopSignals()
	os.Exit(code)
}
