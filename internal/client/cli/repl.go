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

// execIface is the command surface the REPL dispatches to. App implements
// it; tests use a stub.
type execIface interface {
	Status(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Check(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	Target(ctx context.Context, args []string) error
	Backup(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  status                              connectivity, outbox and last sync
  sync                                sync now (trusted network only)
  check                               re-check network and server
  add [amount title... #tag @date]    add an expense (prompts without args)
  list [YYYY-MM|all]                  list expenses
  delete <id>                         delete an expense
  tag [list|add|rename|delete] ...    manage tags
  target [list|set|delete] ...        manage monthly targets
  backup                              upload a database backup if changed
  restore <path>                      download the latest backup to path
  exit | quit                         leave the program`

// runREPL reads commands line by line from reader and dispatches them to a
// until EOF, "exit" or "quit", or ctx cancellation. Handler errors are
// printed and never end the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("fh %s> ", statusFn()))
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
		case "help", "?":
			printlnFn(helpText)
		case "status":
			cmdErr = a.Status(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx, args)
		case "check":
			cmdErr = a.Check(ctx, args)
		case "add":
			cmdErr = a.Add(ctx, args)
		case "l", "list":
			cmdErr = a.List(ctx, args)
		case "delete", "rm":
			cmdErr = a.Delete(ctx, args)
		case "tag", "tags":
			cmdErr = a.Tag(ctx, args)
		case "target", "targets":
			cmdErr = a.Target(ctx, args)
		case "backup":
			cmdErr = a.Backup(ctx, args)
		case "restore":
			cmdErr = a.Restore(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}
