package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/omochice/toy-chat-client/internal/devserver"
	"github.com/omochice/toy-chat-client/internal/logging"
	"github.com/spf13/cobra"
)

var (
	addr       string
	signingKey string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "devserver",
	Short:        "In-memory chat server for local development",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	rootCmd.Flags().StringVar(&signingKey, "signing-key", "", "token signing key (random when empty)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(logLevel, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if signingKey == "" {
		signingKey = uuid.NewString()
	}
	srv := devserver.New(devserver.Config{Address: addr, SigningKey: signingKey}, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infow("Shutting down", "signal", sig.String())
	srv.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
