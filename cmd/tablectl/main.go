package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"wordcount/message"
	"wordcount/table"
	"wordcount/utils"
)

// Context carries what every command needs.
type Context struct {
	ctx     context.Context
	address string
	out     io.Writer
}

func printUsage(w io.Writer, name string) {
	fmt.Fprintf(w, `Usage of %s: %s [OPTIONS] <COMMAND> [ARGS]
Options:
  -tsa <address>             Table server address (default "localhost:9000").
  -timeout <duration>        Request timeout (default 10s).
  -limit <number>            (For scan command) Maximum number of cells (default 0, no limit).
  -h                         Print this help message.
Commands:
  create <table> <family>...            Create a table with the given column families.
  get <table> <row> [family] [column]   Show one cell (default cf:count).
  scan <table> [prefix]                 List the cells of the rows starting with prefix.
  stats                                 Show the tables of the server.
`, name, name)
}

func checkCommand(commands []string) error {
	if len(commands) == 0 {
		return errors.New("no command specified")
	}
	switch commands[0] {
	case "create":
		if len(commands) < 3 {
			return errors.New("create command requires a table and at least one family")
		}
	case "get":
		if len(commands) != 3 && len(commands) != 5 {
			return errors.New("get command requires <table> <row> [family column]")
		}
	case "scan":
		if len(commands) < 2 || len(commands) > 3 {
			return errors.New("scan command requires <table> [prefix]")
		}
	case "stats":
		if len(commands) != 1 {
			return errors.New("stats command takes no arguments")
		}
	default:
		return fmt.Errorf("unknown command %q", commands[0])
	}
	return nil
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	name := args[0]
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() { printUsage(stderr, name) }
	serverAddr := flagSet.String("tsa", "localhost:9000", "Table server address")
	timeout := flagSet.Duration("timeout", 10*time.Second, "Request timeout")
	limit := flagSet.Uint("limit", 0, "Maximum number of cells returned by scan")
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := checkCommand(flagSet.Args()); err != nil {
		fmt.Fprintln(stderr, err)
		printUsage(stderr, name)
		return 2
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx := Context{ctx: reqCtx, address: *serverAddr, out: stdout}
	var operation string
	var err error
	commands := flagSet.Args()
	switch commands[0] {
	case "create":
		err = ctx.CreateTable(commands[1], commands[2:])
		operation = "create table"
	case "get":
		family, column := table.CountFamily, table.CountColumn
		if len(commands) == 5 {
			family, column = commands[3], commands[4]
		}
		err = ctx.Get(commands[1], commands[2], family, column)
		operation = "get cell"
	case "scan":
		prefix := ""
		if len(commands) == 3 {
			prefix = commands[2]
		}
		err = ctx.Scan(commands[1], prefix, uint32(*limit))
		operation = "scan table"
	case "stats":
		err = ctx.Stats()
		operation = "get stats"
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s failed: %v\n", operation, err)
		return 1
	}
	return 0
}

func (ctx *Context) send(req message.Message) (message.Message, error) {
	resp, err := utils.SendSingleRequest(ctx.ctx, ctx.address, req)
	var rpcErr *message.Error
	if errors.As(err, &rpcErr) {
		if mapped := table.FromCode(rpcErr.Code, rpcErr.Message); mapped != nil {
			return nil, mapped
		}
	}
	return resp, err
}

// formatValue prints 8-byte values as counts and everything else quoted.
func formatValue(family, column string, value []byte) string {
	if family == table.CountFamily && column == table.CountColumn {
		if n, err := table.DecodeCount(value); err == nil {
			return fmt.Sprint(n)
		}
	}
	return fmt.Sprintf("%q", value)
}

// CreateTable creates a table on the server
func (ctx *Context) CreateTable(name string, families []string) error {
	_, err := ctx.send(&message.CreateTableRequest{Table: name, Families: families})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.out, "Table %s created\n", name)
	return nil
}

// Get prints one cell
func (ctx *Context) Get(name, row, family, column string) error {
	resp, err := ctx.send(&message.GetRequest{Table: name, Row: []byte(row), Family: family, Column: column})
	if err != nil {
		return err
	}
	respMsg := resp.(*message.GetResponse)
	if !respMsg.Found {
		return fmt.Errorf("no value at %s %s:%s", row, family, column)
	}
	fmt.Fprintf(ctx.out, "%s\t%s:%s\t%s\n", row, family, column, formatValue(family, column, respMsg.Value))
	return nil
}

// Scan lists the cells of a table
func (ctx *Context) Scan(name, prefix string, limit uint32) error {
	resp, err := ctx.send(&message.ScanRequest{Table: name, Prefix: []byte(prefix), Limit: limit})
	if err != nil {
		return err
	}
	respMsg := resp.(*message.ScanResponse)
	fmt.Fprintf(ctx.out, "Total cells: %d\n", len(respMsg.Cells))
	for _, c := range respMsg.Cells {
		fmt.Fprintf(ctx.out, "%s\t%s:%s\t%s\n", c.Row, c.Family, c.Column, formatValue(c.Family, c.Column, c.Value))
	}
	return nil
}

// Stats shows the server and its tables
func (ctx *Context) Stats() error {
	resp, err := ctx.send(&message.StatsRequest{})
	if err != nil {
		return err
	}
	respMsg := resp.(*message.StatsResponse)
	fmt.Fprintf(ctx.out, "Started at: %s, free space: %d\n", respMsg.StartedAt.Local().Format(time.DateTime), respMsg.FreeSpace)
	fmt.Fprintf(ctx.out, "Total tables: %d\n", len(respMsg.Tables))
	fmt.Fprintf(ctx.out, "%20s%15s%35s  %s\n", "table", "rows", "digest", "families")
	for _, t := range respMsg.Tables {
		fmt.Fprintf(ctx.out, "%20s%15d%35s  %v\n", t.Table, t.Rows, t.Digest, t.Families)
	}
	return nil
}
