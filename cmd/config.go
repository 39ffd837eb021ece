package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after defaults, the config file and the
environment have been applied. API keys are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			out, err := cfg.Masked().YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))

			if validate {
				return cfg.Validate()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Also report settings the server cannot start with")

	return cmd
}
