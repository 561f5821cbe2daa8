// Package commands implements the bfsdevice CLI: the storage-daemon
// entry point that serves one configured local block device over the
// device protocol.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "bfsdevice",
	Short: "BFS storage daemon",
	Long: `bfsdevice serves a single configured block device over the
device-to-device protocol: GET_BLOCK, PUT_BLOCK, GET_TOPO, and their
bulk variants, authenticated against a configured security association.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./bfs.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("bfsdevice %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
