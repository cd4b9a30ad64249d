package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the track and window commands
type Options struct {
	Inputs           []string
	Stride           int
	Smoother         string
	Window           int
	Order            int
	Sigma            float64
	ProcessNoise     float64
	MeasurementNoise float64
	Threshold        float64
	Workers          int
	DetectorCmd      string
	DetectorSocket   string
	StrictCache      bool
}

var (
	// Cache is the track cache shared by subcommands
	Cache store.Cache

	cfg          = loadConfig()
	workDir      string
	cacheBackend string
	// dbURL is the PostgreSQL connection string or SQLite path
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "reframe",
	Short:   "Face-tracking viewport engine for reframing fixed-camera video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		url := dbURL
		if url == "" && cacheBackend == store.BackendPostgres {
			url = cfg.DatabaseURL
		}

		var err error
		// Use the command's context (which will be cancellable) for the connection
		Cache, err = store.Open(cmd.Context(), store.Options{Backend: cacheBackend, Dir: workDir, URL: url})
		if err != nil {
			return fmt.Errorf("failed to open %s cache: %w", cacheBackend, err)
		}
		return nil
	},
}

// closeCache runs after every command, including ones whose RunE failed.
func closeCache() {
	if Cache != nil {
		Cache.Close()
		Cache = nil
	}
}

func loadConfig() *config.Config {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
	}
	return config.Load()
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnFinalize(closeCache)
	rootCmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", cfg.WorkDir, "Directory for cached tracks")
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache", cfg.Cache, "Track cache backend: file, postgres or sqlite")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string or SQLite file (default: from POSTGRES_* / <work-dir>/reframe.db)")
}
