package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long:  `Parse and validate a Mimir configuration file without starting the engine.`,
	RunE:  runValidate,
}

var validateConfigPath string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "path to configuration file (required)")
	validateCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(validateConfigPath)
	if err != nil {
		return err
	}

	links := 0
	for _, l := range cfg.Links {
		ls, _ := l.Model()
		links += len(ls)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d devices, %d links\n", len(cfg.Devices), links)
	return nil
}
