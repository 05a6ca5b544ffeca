package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	LogDay(ctx context.Context, args []string) error
	LogCycle(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Day(ctx context.Context, args []string) error
	Range(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Pending(ctx context.Context) error
	Status(ctx context.Context) error
	Sync(ctx context.Context) error
	Export(ctx context.Context, args []string) error
	Profile(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  log [YYYY-MM-DD]             add or edit the daily log (default today)
  cycle <start> [end]          record a cycle
  show <id>                    show one record
  day <YYYY-MM-DD>             show the daily log of a date
  range <from> <to> [coll]     list records (dailyLogs, cycles, insights)
  delete <id>                  delete a record
  pending                      list operations waiting for sync
  status                       connectivity and feature availability
  sync                         push and pull now
  export <from> <to>           upload a JSON export
  profile [set]                show or edit the profile
  exit | quit                  leave the program`

// runREPL reads commands from reader and dispatches them to a until EOF or
// "exit". The prompt, which shows the status from statusFn, is printed only
// for interactive sessions. Command errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, interactive bool) {
	for {
		if interactive {
			fmt.Printf("cs %s> ", statusFn())
		}
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "log":
			cmdErr = a.LogDay(ctx, args)
		case "cycle":
			cmdErr = a.LogCycle(ctx, args)
		case "show":
			cmdErr = a.Show(ctx, args)
		case "day":
			cmdErr = a.Day(ctx, args)
		case "range":
			cmdErr = a.Range(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "pending":
			cmdErr = a.Pending(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "export":
			cmdErr = a.Export(ctx, args)
		case "profile":
			cmdErr = a.Profile(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
