// Command kv is the smoldb client CLI: get/set/rm/ls subcommands over a
// pooled connection to a kvd server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/nikosl/smoldb/internal/client"
	"github.com/nikosl/smoldb/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load("config.yml")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	flagSet := flag.NewFlagSet("kv", flag.ContinueOnError)
	addr := flagSet.String("addr", cfg.Addr, "server address (host:port)")
	poolSize := flagSet.Int("pool-size", cfg.PoolSize, "maximum number of pooled connections")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	rest := flagSet.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "usage: kv --addr HOST:PORT <get|set|rm|ls> [args...]")
		return 2
	}

	c := client.Connect(*addr, *poolSize)
	defer c.Close()
	ctx := context.Background()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "get":
		return cmdGet(ctx, c, cmdArgs)
	case "set":
		return cmdSet(ctx, c, cmdArgs)
	case "rm":
		return cmdRemove(ctx, c, cmdArgs)
	case "ls":
		return cmdList(ctx, c, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		return 2
	}
}

func cmdGet(ctx context.Context, c *client.Client, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: kv get KEY")
		return 2
	}
	value, ok, err := c.Get(ctx, args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !ok {
		fmt.Println("Key not found")
		return 0
	}
	fmt.Println(value)
	return 0
}

func cmdSet(ctx context.Context, c *client.Client, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: kv set KEY VALUE")
		return 2
	}
	if err := c.Set(ctx, args[0], args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func cmdRemove(ctx context.Context, c *client.Client, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: kv rm KEY")
		return 2
	}
	err := c.Remove(ctx, args[0])
	if err == nil {
		return 0
	}
	var serverErr *client.ServerError
	if errors.As(err, &serverErr) {
		fmt.Fprintln(os.Stderr, "Key not found")
		return 1
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func cmdList(ctx context.Context, c *client.Client, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: kv ls")
		return 2
	}
	keys, err := c.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return 0
}
