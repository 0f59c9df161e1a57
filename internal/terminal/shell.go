package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/omochice/toy-chat-client/internal/client"
	"go.uber.org/zap"
)

// Engine is the part of client.Engine the shell drives.
type Engine interface {
	Submit(ctx context.Context, text string) error
	OpenDirect(ctx context.Context, target string) (string, error)
	Select(ctx context.Context, id string) error
	FetchConversations(ctx context.Context) error
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password, confirm string) error
	Logout(ctx context.Context) error
}

// Shell reads commands from in and runs them against an Engine.
type Shell struct {
	eng    Engine
	pres   *Presenter
	in     io.Reader
	out    io.Writer
	logger *zap.SugaredLogger

	// pending tracks commands running in the background.
	pending sync.WaitGroup
}

// NewShell creates a Shell. pres resolves list positions for /select.
func NewShell(eng Engine, pres *Presenter, in io.Reader, out io.Writer, logger *zap.SugaredLogger) *Shell {
	return &Shell{eng: eng, pres: pres, in: in, out: out, logger: logger}
}

// Run processes lines until /quit, end of input or ctx is done.
// The reader goroutine may outlive Run while blocked on input. Background
// commands are cancelled and waited for before Run returns.
func (s *Shell) Run(ctx context.Context) error {
	defer s.pending.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			return nil
		case line := <-lines:
			quit, err := s.Exec(ctx, Parse(line))
			if errors.Is(err, client.ErrStopped) {
				return nil
			}
			if err != nil {
				s.logger.Debugw("Command failed", "line", line, "error", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs a single command and reports whether the shell should exit.
// Failures are already shown by the presenter; the error is returned for logging.
// /open and /select wait on the network, so they run in the background and
// input keeps flowing; their errors are logged only.
func (s *Shell) Exec(ctx context.Context, cmd Command) (quit bool, err error) {
	switch cmd.Kind {
	case KindEmpty:
		return false, nil
	case KindQuit:
		return true, nil
	case KindHelp:
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case KindUnknown:
		fmt.Fprintf(s.out, "Unknown command %s. Type /help for a list.\n", cmd.Args[0])
		return false, nil
	case KindSend:
		return false, s.eng.Submit(ctx, cmd.Text)
	case KindChats:
		return false, s.eng.FetchConversations(ctx)
	case KindLogout:
		return false, s.eng.Logout(ctx)
	case KindOpen:
		if len(cmd.Args) != 1 {
			return false, s.usage("/open <username>")
		}
		target := cmd.Args[0]
		s.background(ctx, "open", func(ctx context.Context) error {
			_, err := s.eng.OpenDirect(ctx, target)
			return err
		})
		return false, nil
	case KindSelect:
		if len(cmd.Args) != 1 {
			return false, s.usage("/select <n|chat id>")
		}
		id := s.resolve(cmd.Args[0])
		s.background(ctx, "select", func(ctx context.Context) error {
			return s.eng.Select(ctx, id)
		})
		return false, nil
	case KindLogin:
		if len(cmd.Args) != 2 {
			return false, s.usage("/login <username> <password>")
		}
		return false, s.eng.Login(ctx, cmd.Args[0], cmd.Args[1])
	case KindRegister:
		if len(cmd.Args) != 2 {
			return false, s.usage("/register <username> <password>")
		}
		return false, s.eng.Register(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[1])
	}
	return false, nil
}

func (s *Shell) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(ctx); err != nil {
			s.logger.Debugw("Command failed", "command", name, "error", err)
		}
	}()
}

// resolve maps a list position to a chat id; anything else is taken as an id.
func (s *Shell) resolve(arg string) string {
	if n, err := strconv.Atoi(arg); err == nil {
		if id, ok := s.pres.Lookup(n); ok {
			return id
		}
	}
	return arg
}

func (s *Shell) usage(text string) error {
	fmt.Fprintf(s.out, "Usage: %s\n", text)
	return client.ErrInvalidInput
}
