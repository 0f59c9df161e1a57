package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks for values on a terminal, hiding passwords when input is a TTY.
type Prompter struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
}

// NewPrompter creates a Prompter reading from in.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	return &Prompter{in: in, reader: bufio.NewReader(in), out: out}
}

// Line reads one visible line.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// Password reads a line without echo. It falls back to a visible read when
// input is not a terminal.
func (p *Prompter) Password(label string) (string, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return p.Line(label)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}

// Reader returns the buffered input so later readers see any bytes already
// consumed from the file.
func (p *Prompter) Reader() io.Reader {
	return p.reader
}
