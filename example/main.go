// Command example runs a string echo server or client over TCP or UDP.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Zereker/particle"
)

var (
	cfgFile string
	address string
	debug   bool

	cfg *Config
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "example",
	Short:         "Echo server and client over TCP or UDP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = loadConfig(cfgFile); err != nil {
			return err
		}
		if address != "" {
			cfg.Address = address
		}
		if debug {
			cfg.Debug = true
		}
		if cfg.Debug {
			log.SetLevel(logrus.DebugLevel)
			particle.SetDebug(true)
		}
		return nil
	},
}

func serverCmd(name string, udp bool) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "Run an echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveEcho(cfg, log, udp)
		},
	}
}

func clientCmd(name string, udp bool) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "Send stdin lines to an echo server and print the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEchoClient(cfg, log, udp, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&address, "addr", "", "address to listen on or connect to (host:port)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log swallowed errors")

	rootCmd.AddCommand(
		serverCmd("tcp-server", false),
		serverCmd("udp-server", true),
		clientCmd("tcp-client", false),
		clientCmd("udp-client", true),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
