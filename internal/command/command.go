// Package command parses the simulator's scripted input lines into
// structured commands, in the Name/Args-then-validate shape this
// codebase's shell parser uses for its own dotted commands.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/repcrec/repcrec/internal/types"
)

// Kind identifies which command form a line parsed as.
type Kind int

const (
	Begin Kind = iota
	Read
	Write
	End
	Fail
	Recover
	Dump
	QueryState
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Begin:
		return "begin"
	case Read:
		return "read"
	case Write:
		return "write"
	case End:
		return "end"
	case Fail:
		return "fail"
	case Recover:
		return "recover"
	case Dump:
		return "dump"
	case QueryState:
		return "queryState"
	default:
		return "unknown"
	}
}

// Command is one parsed input line.
type Command struct {
	Kind  Kind
	Tran  types.TranID
	Var   types.VarID
	Site  types.SiteID
	Value int
	Line  string
}

// Parse turns one raw input line into a Command. It returns (nil, nil) for
// blank lines and `//`-prefixed comments, which the caller should simply
// skip. A Kind of Unknown is returned (with a nil error) for any
// well-formed but unrecognized `name(args)` line; callers decide how loud
// to be about it.
func Parse(line string) (*Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}

	open := strings.Index(trimmed, "(")
	close := strings.LastIndex(trimmed, ")")
	if open < 0 || close < open {
		return nil, fmt.Errorf("command: malformed line %q", line)
	}

	name := strings.TrimSpace(trimmed[:open])
	args := splitArgs(trimmed[open+1 : close])

	switch name {
	case "begin":
		t, err := tranArg(args, 0)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: Begin, Tran: t, Line: line}, nil

	case "R":
		t, err := tranArg(args, 0)
		if err != nil {
			return nil, err
		}
		v, err := varArg(args, 1)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: Read, Tran: t, Var: v, Line: line}, nil

	case "W":
		t, err := tranArg(args, 0)
		if err != nil {
			return nil, err
		}
		v, err := varArg(args, 1)
		if err != nil {
			return nil, err
		}
		value, err := intArg(args, 2)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: Write, Tran: t, Var: v, Value: value, Line: line}, nil

	case "end":
		t, err := tranArg(args, 0)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: End, Tran: t, Line: line}, nil

	case "fail":
		s, err := siteArg(args, 0)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: Fail, Site: s, Line: line}, nil

	case "recover":
		s, err := siteArg(args, 0)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: Recover, Site: s, Line: line}, nil

	case "dump":
		return &Command{Kind: Dump, Line: line}, nil

	case "queryState":
		return &Command{Kind: QueryState, Line: line}, nil

	default:
		return &Command{Kind: Unknown, Line: line}, nil
	}
}

func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.Split(raw, ",")
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = strings.TrimSpace(f)
	}
	return args
}

func argAt(args []string, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("command: expected at least %d argument(s), got %d", i+1, len(args))
	}
	return args[i], nil
}

func tranArg(args []string, i int) (types.TranID, error) {
	s, err := argAt(args, i)
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(s, "T") {
		return 0, fmt.Errorf("command: %q is not a transaction id (want TN)", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("command: %q is not a transaction id: %w", s, err)
	}
	return types.TranID(n), nil
}

func varArg(args []string, i int) (types.VarID, error) {
	s, err := argAt(args, i)
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(s, "x") {
		return 0, fmt.Errorf("command: %q is not a variable id (want xN)", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("command: %q is not a variable id: %w", s, err)
	}
	return types.VarID(n), nil
}

func siteArg(args []string, i int) (types.SiteID, error) {
	s, err := argAt(args, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("command: %q is not a site id: %w", s, err)
	}
	return types.SiteID(n), nil
}

func intArg(args []string, i int) (int, error) {
	s, err := argAt(args, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("command: %q is not an integer: %w", s, err)
	}
	return n, nil
}
