// Package cli builds the scenebridge command tree.
//
//	scenebridge
//	├── serve             run the MCP server until SIGINT/SIGTERM
//	├── bridge            relay stdio JSON-RPC to a running server
//	├── validate-config   load and validate a config file
//	└── version
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/scenebridge-mcp/internal/bridge"
	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/lifecycle"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configFile string
	debug      bool
}

// BuildCLI returns the root command
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:   "scenebridge",
		Short: "scenebridge: MCP server for a single-threaded scene host",
		Long: `scenebridge exposes a single-threaded scene host to MCP clients over
HTTP and SSE. Tool calls are queued and run one at a time on the host loop,
with bounded waiting, eviction of the oldest pending work, and a coordinated
shutdown that can be followed by a fresh start.`,
		Version:      defaults.Server.Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(buildServeCommand(opts))
	rootCmd.AddCommand(buildBridgeCommand(opts))
	rootCmd.AddCommand(buildValidateCommand(opts))
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

// newLogger writes JSON to w at Info, or Debug when debug is set
func newLogger(w io.Writer, debug bool, level slog.Level) *slog.Logger {
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the file and environment, then lets the debug flag win
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

type serveFlags struct {
	host           string
	port           int
	token          string
	requireAuth    bool
	grpcHealthPort int
}

func buildServeCommand(root *rootOptions) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long:  "Start the HTTP/SSE MCP server and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, flags, &cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.Debug, slog.LevelInfo))
		},
	}

	bindServeFlags(cmd, flags)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, flags *serveFlags) {
	cmd.Flags().StringVar(&flags.host, "host", config.DefaultHost, "interface to bind")
	cmd.Flags().IntVarP(&flags.port, "port", "p", config.DefaultPort, "port to listen on")
	cmd.Flags().StringVar(&flags.token, "token", "", "bearer token clients must present")
	cmd.Flags().BoolVar(&flags.requireAuth, "require-auth", false, "require a bearer token on every request")
	cmd.Flags().IntVar(&flags.grpcHealthPort, "grpc-health-port", 0, "serve gRPC health checks on this port (0 disables)")
}

// applyServeFlags overlays only the flags the user actually set
func applyServeFlags(cmd *cobra.Command, flags *serveFlags, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = flags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flags.port
	}
	if cmd.Flags().Changed("token") {
		cfg.Auth.Token = flags.token
	}
	if cmd.Flags().Changed("require-auth") {
		cfg.Auth.Required = flags.requireAuth
	}
	if cmd.Flags().Changed("grpc-health-port") {
		cfg.GRPCHealthPort = flags.grpcHealthPort
	}
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn("Configuration warning", "warning", w)
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.CheckPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}

	logger.Info("Starting scenebridge MCP server",
		"version", cfg.Server.Version,
		"addr", cfg.Addr(),
		"debug", cfg.Debug,
		"auth_required", cfg.Auth.Required,
		"auth_token", maskedToken(cfg.Auth.Token),
		"grpc_health_port", cfg.GRPCHealthPort,
	)

	mgr := lifecycle.NewManager(lifecycle.Options{Config: cfg, Logger: logger})
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	mgr.InitiateShutdown()
	return nil
}

func maskedToken(token string) string {
	if token == "" {
		return ""
	}
	return config.MaskToken(token)
}

type bridgeFlags struct {
	url     string
	token   string
	timeout time.Duration
	retries int
}

func buildBridgeCommand(root *rootOptions) *cobra.Command {
	flags := &bridgeFlags{}
	defaults := bridge.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Relay stdio JSON-RPC to a running server",
		Long: `Read newline-delimited JSON-RPC messages from stdin, forward each one to
the server's /http endpoint and write the replies to stdout. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaults
			cfg.URL = flags.url
			cfg.Timeout = flags.timeout
			cfg.Policy.MaxRetries = flags.retries
			cfg.Token = flags.token
			if cfg.Token == "" {
				cfg.Token = os.Getenv(config.EnvAuthToken)
			}

			logger := newLogger(cmd.ErrOrStderr(), root.debug, slog.LevelWarn)
			b, err := bridge.New(cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return b.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", defaults.URL, "server JSON-RPC endpoint")
	cmd.Flags().StringVar(&flags.token, "token", "", "bearer token (defaults to $"+config.EnvAuthToken+")")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", defaults.Timeout, "per-request timeout")
	cmd.Flags().IntVar(&flags.retries, "retries", defaults.Policy.MaxRetries, "retries on transient connection errors")

	return cmd
}

func buildValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration and print warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			warnings, err := cfg.Validate()
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Fprintf(out, "configuration OK (listening on %s, auth required: %v)\n", cfg.Addr(), cfg.Auth.Required)
			return nil
		},
	}
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Default()
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", cfg.Server.Name, cfg.Server.Version)
		},
	}
}
