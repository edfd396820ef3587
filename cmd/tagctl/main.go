package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Telmann/opc-ua-task/internal/client"
	"github.com/Telmann/opc-ua-task/internal/service"
)

const usage = `Usage: tagctl [-addr URL] [-timeout D] <command> [args]

Commands:
  create                                 discover tags and create a device table
  rename-table <old> <new>
  delete-table <table>
  rename-tag   <table> <old> <new>
  delete-tag   <table> <tag>
  add-tag      <table> <name> <type> <value>
  tables                                 list device tables
  tags         <table>                   list rows of a table
  export       <table> [file]            download rows as xlsx (default <table>.xlsx)
  events       [count]                   recent table lifecycle events
  watch                                  follow simulator telemetry over MQTT
`

// errUsage 参数数量不对
var errUsage = errors.New("invalid arguments")

type command struct {
	args int // 最少参数个数
	run  func(ctx context.Context, c *client.Client, args []string) error
}

var commands = map[string]command{
	"create": {0, func(ctx context.Context, c *client.Client, _ []string) error {
		return printResult(c.CreateTable(ctx))
	}},
	"rename-table": {2, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.RenameTable(ctx, a[0], a[1]))
	}},
	"delete-table": {1, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.DeleteTable(ctx, a[0]))
	}},
	"rename-tag": {3, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.RenameTag(ctx, a[0], a[1], a[2]))
	}},
	"delete-tag": {2, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.DeleteTag(ctx, a[0], a[1]))
	}},
	"add-tag": {4, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.AddTag(ctx, service.AddTagRequest{
			TableName: a[0], TagName: a[1], TagType: a[2], TagValue: a[3],
		}))
	}},
	"tables": {0, func(ctx context.Context, c *client.Client, _ []string) error {
		return printResult(c.ListTables(ctx))
	}},
	"tags": {1, func(ctx context.Context, c *client.Client, a []string) error {
		return printResult(c.ListTags(ctx, a[0]))
	}},
	"export": {1, exportTable},
	"events": {0, func(ctx context.Context, c *client.Client, a []string) error {
		count := 20
		if len(a) > 0 {
			if _, err := fmt.Sscanf(a[0], "%d", &count); err != nil {
				return fmt.Errorf("invalid count %q", a[0])
			}
		}
		return printResult(c.RecentEvents(ctx, count))
	}},
}

func main() {
	addr := flag.String("addr", getEnv("TAGBRIDGE_URL", "http://localhost:8000"), "bridge API base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if name == "watch" {
		err = watch(ctx)
	} else {
		cmd, ok := commands[name]
		if !ok || len(args) < cmd.args {
			flag.Usage()
			os.Exit(2)
		}
		err = cmd.run(ctx, client.New(*addr, *timeout), args)
	}
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.Fatalf("%s failed (HTTP %d): %s", name, apiErr.StatusCode, apiErr.Detail)
		}
		log.Fatalf("%s failed: %v", name, err)
	}
}

func exportTable(ctx context.Context, c *client.Client, args []string) error {
	table := args[0]
	path := table + ".xlsx"
	if len(args) > 1 {
		path = args[1]
	}
	data, err := c.ExportTable(ctx, table)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Exported %s to %s (%d bytes)\n", table, path, len(data))
	return nil
}

func printResult(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
