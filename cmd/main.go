package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"taskd/internal/config"
	"taskd/internal/repository"
	"taskd/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "taskd",
	Short:         "taskd - todo list service over HTTP and MCP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		c, err := config.Get()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd, importCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging installs the process logger. stderr keeps stdout clean for
// the stdio transport.
func setupLogging(stderr bool) io.Closer {
	return logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: stderr})
}

func storageOptions() repository.Options {
	return repository.Options{
		DatabaseURL: cfg.DatabaseURL,
		DBPoolSize:  cfg.DBPoolSize,
		DBTimeout:   cfg.DBTimeout,
		Table:       cfg.DBTable,
		File: repository.FileOptions{
			Path:        cfg.TasksFile,
			LockTimeout: cfg.LockTimeout,
		},
	}
}

func openStorage(ctx context.Context) (*repository.Facade, error) {
	return repository.Open(ctx, storageOptions())
}
