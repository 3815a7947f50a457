// Package app builds the gridctl command tree: one "serve" subcommand
// per service (distributor, queue, node, sessionmap), plus "up" for
// running all four in a single process during local development.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/logger"
)

// NewRootCmd creates the gridctl root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "gridctl",
		DisableAutoGenTag: true,
		Short:             "gridctl runs and operates the session distribution core",
		Long: `gridctl runs the session distribution core's services: the distributor
that schedules browser sessions onto nodes, the queue that holds pending
session requests, the per-node agent, and the session-to-node lookup map.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	v := config.New()
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newDistributorCmd(v))
	rootCmd.AddCommand(newQueueCmd(v))
	rootCmd.AddCommand(newNodeCmd(v))
	rootCmd.AddCommand(newSessionMapCmd(v))
	rootCmd.AddCommand(newUpCmd(v))

	rootCmd.SilenceUsage = true
	return rootCmd
}
