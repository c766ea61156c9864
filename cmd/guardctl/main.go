// Command guardctl is the operator tool for projectguard: it prints the
// capability catalogue, validates tokens, evaluates offline scenarios and
// enqueues grant maintenance jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/workboard/projectguard/cmd/guardctl/cli"
)

const usage = `usage: guardctl <command> [flags]

commands:
  presets                    print capabilities and presets
  validate TOKEN...          normalise permission tokens
  check -f scenario.yaml     evaluate an offline scenario
  purge-project PROJECT_ID   enqueue removal of a project's grants
  purge-user USER_ID         enqueue removal of a user's grants
  prune-orphans              enqueue the orphan sweep now
  queue                      print default queue counters
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	name, rest := args[0], args[1:]

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	jsonOutput := flags.Bool("json", false, "output as JSON")
	redisAddr := flags.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the job queue")
	scenario := flags.StringP("file", "f", "-", "scenario file, - for stdin")
	timeout := flags.Duration("timeout", 10*time.Second, "queue operation timeout")
	if err := flags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			return 0
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 2
	}
	out := cli.OutputOptions{JSONOutput: *jsonOutput}

	switch name {
	case "presets":
		return cli.PresetsCommand(out)
	case "validate":
		if flags.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "validate: at least one token required")
			return 2
		}
		return cli.ValidateCommand(flags.Args(), out)
	case "check":
		return cli.CheckCommand(cli.CheckOptions{OutputOptions: out, Path: *scenario})
	case "purge-project", "purge-user", "prune-orphans":
		id := ""
		if name != "prune-orphans" {
			if flags.NArg() != 1 {
				fmt.Fprintf(os.Stderr, "%s: exactly one id required\n", name)
				return 2
			}
			id = flags.Arg(0)
		}
		return withJobs(*redisAddr, func(j *cli.JobsCLI) int {
			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			info, err := j.Trigger(ctx, name, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				return 1
			}
			fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return 0
		})
	case "queue":
		return withJobs(*redisAddr, func(j *cli.JobsCLI) int {
			stats, err := j.InspectQueue(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "queue: %v\n", err)
				return 1
			}
			fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d retry=%d archived=%d paused=%t\n",
				stats.Queue, stats.Pending, stats.Active, stats.Retry, stats.Archived, stats.Paused)
			return 0
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}
}

func withJobs(redisAddr string, fn func(*cli.JobsCLI) int) int {
	j := cli.NewJobsCLI(redisAddr)
	defer func() {
		if err := j.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close queue client: %v\n", err)
		}
	}()
	return fn(j)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
