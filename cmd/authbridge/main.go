package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/api"
	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/listener"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/store"
	"github.com/authbridge/authbridge/pkg/token"
	"github.com/authbridge/authbridge/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "authbridge",
	Short: "Auth Bridge - trust broker for service-to-service tokens",
	Long: `Auth Bridge provisions services and workspaces, records directed
trust links between service pairs, and mints short-lived RS256 tokens
whose validity is gated by those links.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Auth Bridge version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		level := log.InfoLevel
		if debug {
			level = log.DebugLevel
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log.Init(log.Config{Level: level, JSONOutput: cfg.Environment != "dev"})

		cipher, err := security.NewCipherFromSecret(cfg.CryptSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize cipher: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		adapter := backend.New(cfg, cipher)
		defer adapter.Close()

		entityCache := cache.New(adapter)
		registry := types.NewRegistry(types.LoadServiceTypes())
		st := store.New(adapter, entityCache, registry)

		ring := token.NewRing(adapter, cipher)
		if err := ring.Load(ctx); err != nil {
			return fmt.Errorf("failed to load signing keys: %w", err)
		}
		authority := token.NewAuthority(ring)
		issuer := token.NewIssuer(authority, entityCache, cfg.TokenTTL())

		authn := auth.New(cfg.AdminKeys, entityCache)
		limiter := auth.NewLimiter(adapter)

		// Warm the caches; a down backend just means they start empty
		entityCache.ReloadServices(ctx)
		entityCache.ReloadWorkspaces(ctx)

		go listener.New(adapter, entityCache).Run(ctx)

		server := api.NewServer(cfg, st, authn, limiter, authority, issuer, registry)
		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a fresh admin key and crypt secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("admin key:    %s\n", security.NewAPIKey())
		fmt.Printf("crypt secret: %s\n", security.NewAPIKey())
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")
}
