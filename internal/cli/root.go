package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"qa-assistant/internal/config"
)

var (
	envFile string
	verbose bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "qa",
	Short: "Retrieval-augmented question answering over a document corpus",
	Long: `qa answers questions grounded in a document collection, keeping a
per-session conversation history.

  qa serve                      # HTTP server on HTTP_PORT
  qa lambda                     # API Gateway proxy handler
  qa ingest docs/*.md           # embed files into COLLECTION_NAME
  qa ingest --manifest corpus.yaml --reset`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		cfg = loaded
		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, lambdaCmd, ingestCmd)
}
