// Command repcrec drives the concurrency-control engine from a scripted
// command stream: a file named on the command line, or standard input
// when no file is given (interactively, via liner, when stdin is a
// terminal; line-by-line otherwise).
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/repcrec/repcrec/internal/command"
	"github.com/repcrec/repcrec/internal/config"
	"github.com/repcrec/repcrec/internal/engine"
	"github.com/repcrec/repcrec/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.DefaultConfig()
	log := logger.Default()
	log.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	clock := engine.NewTickClock(cfg.Clock.Tick)
	coord := engine.NewCoordinator(cfg.Topology.SiteNum, cfg.Topology.VarNum, clock, os.Stdout, log)

	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
			return 1
		}
		defer f.Close()
		runBatch(coord, clock, f, false)
		return 0
	}

	if fi, err := os.Stdin.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		runInteractive(coord, clock)
		return 0
	}

	runBatch(coord, clock, os.Stdin, true)
	return 0
}

// runBatch reads one command per line until EOF, or until a blank line
// when stopOnBlank is set (the rule for reading from standard input).
func runBatch(coord *engine.Coordinator, clock *engine.TickClock, r io.Reader, stopOnBlank bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if stopOnBlank && strings.TrimSpace(line) == "" {
			return
		}
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		dispatch(coord, line)
		clock.Advance()
	}
}

func runInteractive(coord *engine.Coordinator, clock *engine.TickClock) {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		input, err := term.Prompt("repcrec> ")
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
			}
			return
		}
		if strings.TrimSpace(input) == "" {
			return
		}
		term.AppendHistory(input)
		if strings.HasPrefix(strings.TrimSpace(input), "//") {
			continue
		}
		dispatch(coord, input)
		clock.Advance()
	}
}

func dispatch(coord *engine.Coordinator, raw string) {
	cmd, err := command.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
		return
	}
	if cmd == nil {
		return
	}

	switch cmd.Kind {
	case command.Begin:
		reportErr(coord.Begin(cmd.Tran))
	case command.Read:
		reportErr(coord.Read(cmd.Tran, cmd.Var))
	case command.Write:
		reportErr(coord.Write(cmd.Tran, cmd.Var, cmd.Value))
	case command.End:
		reportErr(coord.End(cmd.Tran))
	case command.Fail:
		reportErr(coord.Fail(cmd.Site))
	case command.Recover:
		reportErr(coord.Recover(cmd.Site))
	case command.Dump:
		coord.Dump()
	case command.QueryState:
		coord.QueryState()
	default:
		fmt.Fprintf(os.Stderr, "repcrec: unrecognized command: %s\n", cmd.Line)
	}
}

func reportErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
	}
}
