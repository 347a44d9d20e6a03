package lifecycle

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/project-dy/Essentials/lib/logger"
)

var Logger = logger.GetLogger("lifecycle")

// Version of the line protocol. Peers of the same version understand every command.
const Version = 1

// maxLineLength bounds a single command line
const maxLineLength = 4096

// Command is a single protocol word.
type Command string

const (
	// CommandExit asks the receiver to shut down (Owner to Subordinate) or
	// announces that the sender leaves (Subordinate to Owner).
	CommandExit Command = "exit"
)

var knownCommands = map[Command]struct{}{
	CommandExit: {},
}

// ParseLine returns the command of line. ok is false for blank lines and
// words this version does not know.
func ParseLine(line string) (cmd Command, ok bool) {
	word := Command(strings.TrimSpace(line))
	if _, known := knownCommands[word]; !known {
		return "", false
	}
	return word, true
}

// WriteCommand writes cmd as one line
func WriteCommand(w io.Writer, cmd Command) error {
	_, err := fmt.Fprintf(w, "%s\n", cmd)
	return err
}

// readUntilExit consumes lines from r until an exit command arrives (true), or
// the stream ends (false, nil on EOF)
func readUntilExit(r io.Reader, peer string) (bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64), maxLineLength)

	for scanner.Scan() {
		cmd, ok := ParseLine(scanner.Text())
		if !ok {
			if word := strings.TrimSpace(scanner.Text()); word != "" {
				Logger.Debugf("ignoring unknown command %q from %s", word, peer)
			}
			continue
		}
		if cmd == CommandExit {
			return true, nil
		}
	}
	return false, scanner.Err()
}
