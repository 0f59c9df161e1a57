package terminal

import (
	"strings"
)

// Kind identifies a parsed input line.
type Kind int

const (
	KindSend Kind = iota
	KindOpen
	KindSelect
	KindChats
	KindLogin
	KindRegister
	KindLogout
	KindHelp
	KindQuit
	KindEmpty
	KindUnknown
)

// Command is one line of user input.
type Command struct {
	Kind Kind
	Args []string
	// Text is the raw line for KindSend.
	Text string
}

var commands = map[string]Kind{
	"/open":     KindOpen,
	"/select":   KindSelect,
	"/chats":    KindChats,
	"/login":    KindLogin,
	"/register": KindRegister,
	"/logout":   KindLogout,
	"/help":     KindHelp,
	"/quit":     KindQuit,
	"/exit":     KindQuit,
}

// Parse turns a line into a Command. Lines not starting with a slash are
// messages for the selected chat; "//" escapes a leading slash.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return Command{Kind: KindEmpty}
	case strings.HasPrefix(trimmed, "//"):
		return Command{Kind: KindSend, Text: trimmed[1:]}
	case !strings.HasPrefix(trimmed, "/"):
		return Command{Kind: KindSend, Text: line}
	}

	fields := strings.Fields(trimmed)
	kind, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return Command{Kind: KindUnknown, Args: fields[:1]}
	}
	return Command{Kind: kind, Args: fields[1:]}
}

const helpText = `Commands:
  /open <username>            open or start a direct chat
  /select <n|chat id>         switch to a chat from the list
  /chats                      reload the chat list
  /login <username> <password>
  /register <username> <password>
  /logout
  /quit
Anything else is sent to the selected chat.`
