// Queryd is a query orchestration daemon.
//
// It accepts natural-language queries over HTTP, routes them through a
// multi-stage pipeline (classify, retrieve, verify, synthesize, assess,
// alternatives) backed by a typed agent pool, and returns composed
// answers with provenance and confidence metadata. Completed results
// are cached per user scope.
//
// Usage:
//
//	# Start the daemon with defaults
//	queryd serve
//
//	# Start with a config file; env vars override (SERVER_PORT, ...)
//	queryd serve --config /etc/queryd/config.yaml
//
//	# Show version information
//	queryd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "queryd",
	Short:   "Query orchestration daemon",
	Long:    "queryd routes natural-language queries through a staged agent pipeline and serves the results over HTTP.",
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("queryd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
