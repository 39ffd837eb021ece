package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/elecnecta/wifiqr/internal/generator"
	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var output string
	var backend string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "generate <image>...",
		Short: "Generate Wi-Fi QR codes from photos",
		Long: `Runs photos through the same pipeline the web interface uses and writes
the resulting QR codes to files.

With a single image the QR code is written to --output. With several images
each code is written next to its photo as <name>_qr.png.`,
		Example: `  # Use the configured workflow API
  wifiqr generate router.jpg

  # Read the label with Gemini and write to a custom path
  wifiqr generate router.jpg --backend gemini -o guest.png

  # Process a folder of photos, two at a time
  wifiqr generate photos/*.jpg --concurrency 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			service, err := generator.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(concurrency, 1))
			for _, path := range args {
				target := output
				if len(args) > 1 {
					target = outputPathFor(path)
				}
				g.Go(func() error {
					result, err := generateFile(gctx, service, path)
					if err != nil {
						return fmt.Errorf("%s: %s: %w", path, messages.ForError(cfg.Locale, err), err)
					}
					if err := os.WriteFile(target, result.Image, 0644); err != nil {
						return fmt.Errorf("failed to write QR code: %w", err)
					}
					slog.Info("QR code written", "source", path, "path", target, "backend", result.Backend, "elapsed", result.Elapsed)
					if result.SourceURL != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", target, result.SourceURL)
					}
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "wifi_qr.png", "Where to write the QR code for a single image")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Override the configured backend")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Images processed at the same time")

	return cmd
}

func generateFile(ctx context.Context, service *generator.Service, path string) (*generator.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return service.Generate(ctx, generator.Request{
		Image:    data,
		Filename: filepath.Base(path),
		UserID:   "wifiqr-" + uuid.NewString(),
	})
}

// outputPathFor maps photos/router.jpg to photos/router_qr.png
func outputPathFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_qr.png"
}
