package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"authflow/internal/cli"
	"authflow/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := cli.Main(ctx, cli.Settings{
		BaseURL: cfg.Client.BaseURL,
		Timeout: cfg.Client.Timeout,
		Locale:  cfg.Locale.Default,
		Env:     cfg.Env,
		LogFile: cfg.Log.File,
	}, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(status)
}
