package calcproto

import (
	"strconv"

	"github.com/geph-official/tcpcalc/libs/counter"
)

// InvalidReply is sent back for any line that does not parse.
const InvalidReply = "invalid command"

// Interpreter executes commands against a shared counter.
type Interpreter struct {
	Counter *counter.Counter
}

// Execute runs cmd. The reply has no line terminator. When hangup is true the
// caller must close the connection without replying.
func (it *Interpreter) Execute(cmd Command) (reply string, hangup bool) {
	switch cmd.Verb {
	case VerbGet:
		return strconv.FormatInt(it.Counter.Read(), 10), false
	case VerbAdd:
		return strconv.FormatInt(it.Counter.Add(cmd.Arg), 10), false
	case VerbSubtract:
		return strconv.FormatInt(it.Counter.Subtract(cmd.Arg), 10), false
	case VerbExit:
		return "", true
	}
	return InvalidReply, false
}

// Handle parses and executes one line. A parse error is returned alongside
// InvalidReply so callers can log it; the connection stays open.
func (it *Interpreter) Handle(line string) (verb Verb, reply string, hangup bool, err error) {
	cmd, err := Parse(line)
	if err != nil {
		return VerbInvalid, InvalidReply, false, err
	}
	reply, hangup = it.Execute(cmd)
	return cmd.Verb, reply, hangup, nil
}
