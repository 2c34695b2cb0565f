package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bottledcode/atlas-db/atlas/options"
	"github.com/bottledcode/atlas-db/atlas/storage"
	"github.com/bottledcode/atlas-db/pkg/config"
)

var (
	configPath string
	dataDir    string
	memoryOnly bool
	noBackend  bool
	backend    string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "atlas-tables",
	Short: "Atlas DB table administration",
	Long: `atlas-tables manages the per-node tables kept by an Atlas DB
storage runtime: it bootstraps the data directory, creates, lists,
clears and copies tables, and clones every table of one node to another.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := options.NewLogger(logLevel)
		if err != nil {
			return err
		}
		options.Logger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = options.Logger.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("atlas-tables v0.1.0")
		fmt.Println("Built with Go")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&memoryOnly, "memory", false, "Keep the schema in memory only (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noBackend, "no-backend", false, "Do not activate the backend engine (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Backend engine for table rows (sqlite, badger)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// flagOverrides returns the configuration keys set on the command line
func flagOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		overrides[config.KeyDataDir] = dataDir
	}
	if flags.Changed("memory") {
		overrides[config.KeyPersistToDisk] = !memoryOnly
	}
	if flags.Changed("no-backend") {
		overrides[config.KeyUseBackendEngine] = !noBackend
	}
	return overrides
}

// openStorage resolves the configuration and initializes storage with it
func openStorage(cmd *cobra.Command) (*storage.Handle, error) {
	cfg, err := config.Load(configPath, flagOverrides(cmd), options.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := storage.BackendByName(backend)
	if err != nil {
		return nil, err
	}

	handle, err := storage.Open(cmd.Context(), *cfg, storage.WithLogger(options.Logger), storage.WithBackend(engine))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return handle, nil
}

// withStorage runs fn against initialized storage and closes it afterwards
func withStorage(fn func(cmd *cobra.Command, args []string, h *storage.Handle) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		h, err := openStorage(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := h.Close(); err != nil {
				options.Logger.Error("failed to close storage", zap.Error(err))
			}
		}()
		return fn(cmd, args, h)
	}
}
