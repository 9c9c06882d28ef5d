package main

import (
	"os"

	"tarun-kavipurapu/p2p-send/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	logFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "p2p-send",
	Short: "LAN publish/subscribe for text and files",
	Long: `Publish text or files under a topic on the local network. Peers that
subscribed to the topic pick up the multicast announcement and pull the
content over TCP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logFile == "" {
			return nil
		}
		return logger.Setup(logFile, logLevel)
	},
	SilenceUsage: true,
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "logs/p2p-send.log", "Log file, empty logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $P2P_LOG_LEVEL or $LOG_LEVEL")
}
