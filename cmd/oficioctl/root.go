package main

import (
	"fmt"
	"io"
	"os"

	"oficiogen/backend/internal/store"
	"oficiogen/backend/pkg/config"
	"oficiogen/backend/pkg/logger"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// env carries what the commands need from the outside world
type env struct {
	openStore func(backend string) (*store.Store, error)
	copy      func(text string) error
	out       io.Writer
}

func defaultEnv() env {
	return env{
		openStore: func(backend string) (*store.Store, error) {
			cfg := config.New()
			if backend != "" {
				cfg.Store.Backend = backend
			}
			b, err := store.Open(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
			}
			log := logger.New(logger.Config{Level: "warn", Output: os.Stderr})
			return store.New(b, store.WithTimeout(cfg.Store.Timeout), store.WithLogger(log)), nil
		},
		copy: clipboard.WriteAll,
		out:  os.Stdout,
	}
}

type rootOptions struct {
	backend string
	profile string
}

func newRootCmd(e env) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "oficioctl",
		Short: "Inspect and maintain OficioGen profile data",
		Long: `oficioctl reads the same persistence backend as the server and
operates on one profile at a time.

Examples:
  oficioctl sessions --profile 0190...
  oficioctl export --profile 0190... --session 0190... --copy
  oficioctl reset --profile 0190... --usage`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(e.out)

	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Store backend (memory, redis, postgres, sqlite); defaults to STORE_BACKEND")
	rootCmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "Profile id")
	_ = rootCmd.MarkPersistentFlagRequired("profile")

	rootCmd.AddCommand(
		newSessionsCmd(e, opts),
		newExportCmd(e, opts),
		newUsageCmd(e, opts),
		newResetCmd(e, opts),
	)
	return rootCmd
}

// withStore opens the store for the duration of fn
func withStore(e env, opts *rootOptions, fn func(*store.Store) error) error {
	s, err := e.openStore(opts.backend)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Close()
	}()
	return fn(s)
}
