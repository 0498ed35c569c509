package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/podio/internal/api"
	"github.com/kalambet/podio/internal/storage"
)

const sandboxTokenTTL = 24 * time.Hour

type sandboxOptions struct {
	port         int
	dataDir      string
	seedMail     string
	seedPassword string
}

func newSandboxCmd() *cobra.Command {
	var opts sandboxOptions
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local stand-in for the user and contact API",
		Long: `Run a local stand-in for the user and contact API backed by SQLite.

A demo account is created on first start and an access token for it is
printed, ready for PODIO_API_BASE_URL and PODIO_API_TOKEN. Further tokens
can be requested from POST /oauth/token with the password grant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandbox(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "port to listen on (default from sandbox.port)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "database directory, or :memory: (default from sandbox.data_dir)")
	cmd.Flags().StringVar(&opts.seedMail, "seed-mail", "demo@example.com", "mail of the demo account")
	cmd.Flags().StringVar(&opts.seedPassword, "seed-password", "demo-password", "password of the demo account")
	return cmd
}

func runSandbox(cmd *cobra.Command, opts sandboxOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port := cfg.Sandbox.Port
	if opts.port > 0 {
		port = opts.port
	}
	dataDir := cfg.Sandbox.DataDir
	if opts.dataDir != "" {
		dataDir = opts.dataDir
	}

	secret := cfg.Sandbox.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		printWarning("sandbox.jwt_secret not set; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Opening sandbox database in %s", dataDir)
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	acct, err := api.Seed(store, opts.seedMail, opts.seedPassword, "Demo User")
	if err != nil {
		return fmt.Errorf("seeding demo account: %w", err)
	}

	tokens := api.NewTokenIssuer([]byte(secret), sandboxTokenTTL)
	token, err := tokens.Issue(acct.UserID, cfg.API.ClientID)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewSandboxHandler(api.SandboxDeps{
			Store:  store,
			Tokens: tokens,
			Logger: slog.Default(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	printStatus("Listening", "http://%s", addr)
	printStatus("User", "%s (user_id %d)", acct.Mail, acct.UserID)
	printStatus("Token", "%s", token)
	fmt.Fprintf(cmd.OutOrStdout(), "export PODIO_API_BASE_URL=http://%s PODIO_API_TOKEN=%s\n", addr, token)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the user API as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apis, err := newAPIs(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mcpSrv := api.NewMCPServer(api.MCPDeps{
				Users:    apis.users,
				Contacts: apis.contacts,
				Version:  version,
			})
			slog.Info("MCP server started (stdio transport)")
			err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		},
	}
}
