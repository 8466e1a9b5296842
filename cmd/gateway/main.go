package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"htmlchat/internal/gateway/app"
	"htmlchat/internal/gateway/config"
	"htmlchat/internal/logging"
)

var (
	// Global flags
	verbose     bool
	port        string
	intentsFile string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "htmlchat",
	Short: "HTML Chat Renderer - chat that answers with previewable HTML",
	Long: `htmlchat serves a single-page chat. Bot replies may carry HTML
fragments that open in a sandboxed side panel, and uploaded .html files
are previewed the same way.

Run without arguments to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		loaded.Apply(config.Overrides{Port: port, IntentsFile: intentsFile, Verbose: verbose})
		cfg = loaded

		logger, err = logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server exiting")
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&port, "port", "p", "", "Listen address or port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&intentsFile, "intents", "", "YAML intent rules file (overrides CHAT_INTENTS_FILE)")

	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
