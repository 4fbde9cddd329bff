// Command jsonrpc-peer serves and calls symmetric JSON-RPC peers over TCP.
package main

import (
	"os"

	"jsonrpc-peer/config"
	"jsonrpc-peer/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "jsonrpc-peer",
		Short:         "Symmetric JSON-RPC peers over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (defaults apply when empty)")
	rootCmd.AddCommand(serveCmd, callCmd)
}

// loadConfig returns the config selected by --config and the logger it
// describes.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return config.Config{}, zerolog.Nop(), err
		}
	}
	cfg.Log = cfg.Log.WithEnv()
	return cfg, logging.New(cfg.Log, "jsonrpc-peer", os.Stderr), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = os.Stderr.WriteString("jsonrpc-peer: " + err.Error() + "\n")
		os.Exit(1)
	}
}
