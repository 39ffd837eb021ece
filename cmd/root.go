package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/elecnecta/wifiqr/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// load reads the layered configuration for a subcommand
func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wifiqr",
		Short: "Turn a photo of a Wi-Fi label into a shareable QR code",
		Long: `wifiqr reads a photo of a router sticker, card or sign showing Wi-Fi
details and produces a QR code that phones can scan to join the network.

The photo is handed to a remote workflow API, or read by a local vision model
(Ollama, OpenAI or Gemini) and encoded on this machine.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return setupLogging(opts.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default "+config.DefaultConfigFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newGenerateCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
