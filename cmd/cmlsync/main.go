// Package main is the CLI entry point for cmlsync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cmlsync",
	Short: "Remote command client - register, fetch and run server commands",
	Long: `cmlsync talks to a CML command server. It registers this device with an
RSA key, fetches the list of commands the server offers, and executes them
with signed requests. Executed commands are counted per day so the most used
ones are listed first.

When connected to a WiFi network matching the configured pattern, requests
go to the WiFi URL instead of the public API URL.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	dataDirFlag string
	configFlag  string
	wifiFlag    string
	noWifiFlag  bool
	verboseFlag bool
	jsonOutput  bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.cmlsync)")
	pf.StringVar(&configFlag, "config", "", "Config file (default <data-dir>/config.yaml)")
	pf.StringVar(&wifiFlag, "wifi", "", "Pretend to be connected to this WiFi network")
	pf.BoolVar(&noWifiFlag, "no-wifi", false, "Pretend not to be connected to WiFi")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(legacyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("cmlsync %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
