// Package commands implements the bfsclient CLI: the client entry point
// that establishes a filesystem-boundary RPC channel to a BFS server and
// exposes the write-back file cache (C4) for a FUSE host to drive.
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
	Use:   "bfsclient",
	Short: "BFS client",
	Long: `bfsclient connects to a BFS server over the filesystem-boundary
RPC channel and runs the client-side write-back file cache. The FUSE
bridge that dispatches filesystem operations into the cache is an
external collaborator and is not part of this binary; mount exits
cleanly on SIGINT once the cache and background writer are torn down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./bfs.yaml)")
	rootCmd.AddCommand(mountCmd)
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
		cmd.Printf("bfsclient %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
