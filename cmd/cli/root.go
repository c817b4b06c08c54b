// Package cli implements the ubi-admin command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/pkg/logger"
)

// NewRootCmd builds the `ubi-admin` command tree.
// NewRootCmd 构建 ubi-admin 命令树。
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ubi-admin",
		Short: "Administer the usage-based insurance pricing service.",
		Long: `ubi-admin performs administrative tasks on the UBI pricing service, such as
validating and publishing pricing tables, simulating premiums, running bulk
premium adjustments, migrating the database and serving the risk model.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to the config file (default: ./config.yaml or /etc/ubi/config.yaml)")

	rootCmd.AddCommand(
		newPricingCmd(),
		newAdjustCmd(),
		newMigrateCmd(),
		newModelCmd(),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

// newLogger writes to stderr so command output on stdout stays machine readable.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	logCfg := cfg.Log
	if logCfg.OutputPath == "" {
		logCfg.OutputPath = "stderr"
	}
	return monitoring.NewZapLogger(&logCfg)
}
