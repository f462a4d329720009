package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/raceplayback/server/internal/dispatcher"
)

// readCommands dispatches one command per input line until in is exhausted
// or ctx is cancelled. Blank lines and lines starting with # are skipped.
func readCommands(ctx context.Context, d *dispatcher.Dispatcher, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			e, ok := dispatcher.ParseEvent(line)
			if !ok {
				continue
			}
			writeResult(out, d, e)
		}
	}
}

// runOnce dispatches the command given on the command line and returns the
// process exit code.
func runOnce(args []string, out io.Writer) int {
	e, ok := dispatcher.ParseEvent(strings.Join(args, " "))
	if !ok {
		fmt.Fprintln(out, "ERROR no command given")
		return 2
	}
	if !writeResult(out, eventDispatcher, e) {
		return 1
	}
	return 0
}

// writeResult dispatches e and prints "OK <result>" or "ERROR <message>".
// Queued commands report their outcome through the log.
func writeResult(out io.Writer, d *dispatcher.Dispatcher, e dispatcher.Event) bool {
	result, err := d.Dispatch(e)
	if err != nil {
		fmt.Fprintf(out, "ERROR %s %v\n", e.Command, err)
		return false
	}
	if result == nil {
		fmt.Fprintf(out, "OK %s\n", e.Command)
		return true
	}
	fmt.Fprintf(out, "OK %s %v\n", e.Command, result)
	return true
}
