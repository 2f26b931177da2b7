// main.go - Pool daemon entry point.
//
// Loads configuration, opens the commitment tree and the transaction payload
// store, loads or generates proving keys for all three circuit kinds and
// serves the REST API until interrupted.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeropoolnetwork/zeropool-go/merkle"
	"github.com/zeropoolnetwork/zeropool-go/prover"
	"github.com/zeropoolnetwork/zeropool-go/txstore"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "zeropoold",
		Short:        "Shielded pool daemon: commitment tree, payload store and proof engine",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "zeropoold.json", "path to the configuration file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := NewLogger(cfg.LogLevel)
	log.Info().Str("version", version).Str("config", configPath).Msg("starting")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tree, err := merkle.NewTree(cfg.TreePath())
	if err != nil {
		return fmt.Errorf("failed to open tree: %w", err)
	}
	defer tree.Close()

	payloads, err := txstore.Open(cfg.TxStorePath())
	if err != nil {
		return fmt.Errorf("failed to open transaction store: %w", err)
	}
	defer payloads.Close()

	params, vks, err := loadKeys(cfg.KeyDir, log)
	if err != nil {
		return err
	}

	engine := prover.NewEngine(cfg.MaxProvers, log, params...)
	server := NewServer(tree, payloads, engine, vks, cfg, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return httpServer.Shutdown(context.Background())
	})

	return g.Wait()
}

// loadKeys loads or generates the Groth16 key pair for every circuit kind.
// Generation can take minutes; production deployments ship pre-generated
// keys in the key directory.
func loadKeys(keyDir string, log zerolog.Logger) ([]*prover.Params, map[prover.CircuitKind]groth16.VerifyingKey, error) {
	if err := os.MkdirAll(keyDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	kinds := []prover.CircuitKind{prover.KindTransfer, prover.KindTreeUpdate, prover.KindDelegatedDeposit}
	params := make([]*prover.Params, 0, len(kinds))
	vks := make(map[prover.CircuitKind]groth16.VerifyingKey, len(kinds))
	for _, kind := range kinds {
		pkPath := filepath.Join(keyDir, kind.String()+"_pk.bin")
		vkPath := filepath.Join(keyDir, kind.String()+"_vk.bin")
		log.Info().Str("circuit", kind.String()).Msg("loading keys")
		p, vk, err := prover.SetupOrLoad(kind, pkPath, vkPath)
		if err != nil {
			return nil, nil, fmt.Errorf("key setup for %s failed: %w", kind, err)
		}
		params = append(params, p)
		vks[kind] = vk
	}
	return params, vks, nil
}
