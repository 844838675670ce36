// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lowpan.xyz/schc/internal/config"
	"lowpan.xyz/schc/internal/log"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schc",
	Short: "SCHC - Static Context Header Compression for constrained networks",
	Long: `schc compresses and decompresses IPv6/UDP/CoAP (and related) headers
against pre-shared compression contexts, following RFC 8724.

A context pairs an ordered ruleset with a protocol parser stack. Each packet
is matched against the rules in order; the first matching rule decides which
header bits travel on the wire and which are reconstructed by the receiver.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"daemon config file (optional)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(decompressCmd)
	rootCmd.AddCommand(validateCmd)
}

// initRuntime loads the daemon config (when given) and initialises logging
// and metrics before a command runs.
func initRuntime() error {
	if configFile == "" {
		return log.Init(log.DefaultConfig())
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return err
	}
	return startMetrics(cfg)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
