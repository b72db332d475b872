/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "0.1.0"
)

// loadEnvFile reads KEY=value pairs into the environment so viper can
// pick them up. Variables that are already set win.
func loadEnvFile() error {
	path := os.Getenv("QUIZBOX_ENV_FILE")
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func main() {
	log.SetFlags(0)
	cobra.CheckErr(loadEnvFile())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}
