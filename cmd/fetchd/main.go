// Package main wires together the fetch service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pagewatch/fetchd/internal/config"
	"github.com/pagewatch/fetchd/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	oneShotURL := flag.String("url", "", "Fetch a single URL and exit")
	oneShotNickname := flag.String("nickname", "page", "Nickname for the one-shot fetch")
	oneShotBackend := flag.String("backend", "http", "Backend for the one-shot fetch")
	flag.Parse()

	if err := run(*cfgPath, *oneShotURL, *oneShotNickname, *oneShotBackend); err != nil {
		fmt.Fprintf(os.Stderr, "fetchd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, oneShotURL, nickname, backend string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	if oneShotURL != "" {
		result, err := app.FetchOnce(ctx, oneShotURL, nickname, backend)
		closeErr := app.Close(ctx)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(result.Body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		return closeErr
	}

	return app.Run(ctx)
}
