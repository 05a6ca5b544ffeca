package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.err
}

func (f *fakeExec) LogDay(_ context.Context, args []string) error   { return f.record("log", args) }
func (f *fakeExec) LogCycle(_ context.Context, args []string) error { return f.record("cycle", args) }
func (f *fakeExec) Show(_ context.Context, args []string) error     { return f.record("show", args) }
func (f *fakeExec) Day(_ context.Context, args []string) error      { return f.record("day", args) }
func (f *fakeExec) Range(_ context.Context, args []string) error    { return f.record("range", args) }
func (f *fakeExec) Delete(_ context.Context, args []string) error   { return f.record("delete", args) }
func (f *fakeExec) Pending(context.Context) error                   { return f.record("pending", nil) }
func (f *fakeExec) Status(context.Context) error                    { return f.record("status", nil) }
func (f *fakeExec) Sync(context.Context) error                      { return f.record("sync", nil) }
func (f *fakeExec) Export(_ context.Context, args []string) error   { return f.record("export", args) }
func (f *fakeExec) Profile(_ context.Context, args []string) error  { return f.record("profile", args) }

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var printed []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		printed = append(printed, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &printed
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	printed := capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"log",
		"log 2025-10-10",
		"",
		"cycle 2025-10-01 2025-10-05",
		"show abc",
		"day 2025-10-10",
		"range 2025-10-01 2025-10-31 cycles",
		"delete abc",
		"pending",
		"status",
		"sync",
		"export 2025-10-01 2025-10-31",
		"profile set",
		"foobar",
		"exit",
		"sync",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewReader(strings.NewReader(input)), false)

	assert.Equal(t, []string{
		"log",
		"log 2025-10-10",
		"cycle 2025-10-01 2025-10-05",
		"show abc",
		"day 2025-10-10",
		"range 2025-10-01 2025-10-31 cycles",
		"delete abc",
		"pending",
		"status",
		"sync",
		"export 2025-10-01 2025-10-31",
		"profile set",
	}, exec.calls, "nothing runs after exit")

	assert.Contains(t, *printed, helpText)
	assert.Contains(t, *printed, "Unknown command: foobar")
	assert.Equal(t, "Bye!", (*printed)[len(*printed)-1])
}

func TestRunREPL_LastLineWithoutNewline(t *testing.T) {
	capturePrintln(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("pending\nsync")), false)

	assert.Equal(t, []string{"pending", "sync"}, exec.calls)
}

func TestRunREPL_PrintsCommandErrors(t *testing.T) {
	printed := capturePrintln(t)

	exec := &fakeExec{err: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("status\n")), false)

	assert.Equal(t, []string{"error: boom"}, *printed)
}
