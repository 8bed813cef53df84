package transcoder

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessError is returned when an external tool fails. It carries the full
// command line and whatever the tool wrote to stderr.
type ProcessError struct {
	Command []string
	Stderr  string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s failed: %v\ncommand: %s\noutput: %s",
		e.tool(), e.Err, e.CommandLine(), strings.TrimSpace(e.Stderr))
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// CommandLine renders Command as a single line, quoting arguments that
// contain whitespace or quotes.
func (e *ProcessError) CommandLine() string {
	parts := make([]string, len(e.Command))
	for i, arg := range e.Command {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			arg = strconv.Quote(arg)
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}

func (e *ProcessError) tool() string {
	if len(e.Command) == 0 {
		return "process"
	}
	return toolName(e.Command[0])
}
