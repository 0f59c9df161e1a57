package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/toy-chat-client/internal/terminal"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in and store the session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your chats",
	Args:  cobra.NoArgs,
	RunE:  runChats,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive client",
	Long: `Start the interactive client. Type /help once running for the list of
commands; any other line is sent to the selected chat.`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx, func(ctx context.Context) error { return fn(ctx, a) })
}

func askCredentials(cmd *cobra.Command, args []string, confirm bool) (username, password, again string, err error) {
	p := stdinPrompter(cmd)
	if len(args) > 0 {
		username = args[0]
	} else if username, err = p.Line("Username"); err != nil {
		return "", "", "", err
	}
	if password, err = p.Password("Password"); err != nil {
		return "", "", "", err
	}
	if confirm {
		if again, err = p.Password("Confirm password"); err != nil {
			return "", "", "", err
		}
	}
	return username, password, again, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, password, _, err := askCredentials(cmd, args, false)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return a.engine.Login(ctx, username, password)
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	username, password, confirm, err := askCredentials(cmd, args, true)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return a.engine.Register(ctx, username, password, confirm)
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return a.engine.Logout(ctx)
	})
}

func runChats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ok, err := a.engine.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("not logged in")
		}
		return nil
	})
}

func runInteractive(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p := stdinPrompter(cmd)
		ok, err := a.engine.Restore(ctx)
		if err != nil {
			a.logger.Debugw("Restore failed", "error", err)
		}
		if !ok {
			username, err := p.Line("Username")
			if err != nil {
				return err
			}
			password, err := p.Password("Password")
			if err != nil {
				return err
			}
			if err := a.engine.Login(ctx, username, password); err != nil {
				a.logger.Debugw("Login failed", "error", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Type /help for commands.")
		sh := terminal.NewShell(a.engine, a.pres, p.Reader(), cmd.OutOrStdout(), a.logger)
		return sh.Run(ctx)
	})
}
