package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	serverURL   string
	transportID string
	dataDir     string
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal chat client",
	Long: `A terminal client for the chat server.

Credentials are kept in the data directory between runs, so "chat run"
resumes the last session without logging in again.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "chat.yaml", "path to the YAML config file")
	flags.StringVar(&serverURL, "server", "", "server base URL (e.g. http://localhost:8080)")
	flags.StringVar(&transportID, "transport", "", "websocket library: gobwas, nhooyr or gorilla")
	flags.StringVar(&dataDir, "data-dir", "", "directory holding stored credentials")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, chatsCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
