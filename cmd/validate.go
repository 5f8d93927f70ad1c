package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ext_config "github.com/freezeyt/freezeyt/config"
	"github.com/freezeyt/freezeyt/internal/config"
)

func init() {
	validate := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate configuration files",
		Long: `Validate configuration files against the configuration schema.

Without arguments the files given with --config are validated, merged as
they would be for the other commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if _, err := loadConfig(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
				return nil
			}

			var failed bool
			for _, f := range args {
				if _, err := config.ParseFile(f); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", f, err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", f)
			}

			if failed {
				return fmt.Errorf("invalid configuration")
			}
			return nil
		},
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(ext_config.Schema())
			return err
		},
	}

	RootCommand.AddCommand(validate, schema)
}
