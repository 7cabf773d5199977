package calcproto

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Verb is the first token of a command line.
type Verb string

// recognized verbs; matching is exact and case-sensitive
const (
	VerbGet      Verb = "GET"
	VerbAdd      Verb = "ADD"
	VerbSubtract Verb = "SUBTRACT"
	VerbExit     Verb = "EXIT"
)

// VerbInvalid labels lines that failed to parse, for statistics only.
const VerbInvalid Verb = "invalid"

// ErrInvalidCommand is the cause of every parse failure.
var ErrInvalidCommand = errors.New("invalid command")

var intToken = regexp.MustCompile(`^[+-]?[0-9]+$`)

// Command is one parsed command line.
type Command struct {
	Verb Verb
	Arg  int64
}

// Parse parses a single line, with its terminator already removed. Tokens are
// separated by exactly one space; anything else is ErrInvalidCommand.
func Parse(line string) (cmd Command, err error) {
	fields := strings.Split(line, " ")
	verb := Verb(fields[0])
	switch verb {
	case VerbGet, VerbExit:
		if len(fields) != 1 {
			err = errors.Wrapf(ErrInvalidCommand, "%v takes no argument", verb)
			return
		}
		cmd.Verb = verb
	case VerbAdd, VerbSubtract:
		if len(fields) != 2 {
			err = errors.Wrapf(ErrInvalidCommand, "%v takes exactly one argument", verb)
			return
		}
		if !intToken.MatchString(fields[1]) {
			err = errors.Wrapf(ErrInvalidCommand, "bad integer %q", fields[1])
			return
		}
		var n int64
		n, err = strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			err = errors.Wrapf(ErrInvalidCommand, "integer out of range: %v", err)
			return
		}
		cmd.Verb = verb
		cmd.Arg = n
	default:
		err = errors.Wrapf(ErrInvalidCommand, "unknown verb %q", fields[0])
	}
	return
}

// IsInvalid reports whether err came from Parse rejecting a line.
func IsInvalid(err error) bool {
	return errors.Cause(err) == ErrInvalidCommand
}
