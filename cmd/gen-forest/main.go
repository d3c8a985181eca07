// Command gen-forest enumerates every SKI combinator term of a given
// symbol count, reduces each one to normal form (or cutoff) through
// the parallel arena driver, and writes the resulting evaluation
// forest as JSONL to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nrobinson/arenaski/internal/driver"
	"github.com/nrobinson/arenaski/internal/forest"
	"github.com/nrobinson/arenaski/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the testable core of main: it never calls os.Exit itself, so
// callers (including tests) can inspect its exit code and captured
// output directly.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gen-forest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	maxSteps := fs.Int("max-steps", driver.DefaultParams().MaxStepsPerExpr, "per-expression cumulative reduction step budget")
	noLabels := fs.Bool("no-labels", false, "omit the nodeLabel JSONL pass")
	progress := fs.Bool("progress", false, "print a progress counter to stderr")
	verbose := fs.Bool("v", false, "enable debug-level logging on stderr")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "usage: gen-forest <symbolCount> [--max-steps N] [--no-labels] [--progress] [-v]")
		return 1
	}
	symbolCount, err := strconv.Atoi(rest[0])
	if err != nil || symbolCount <= 0 {
		fmt.Fprintf(stderr, "gen-forest: invalid symbolCount %q: must be a positive integer\n", rest[0])
		return 1
	}

	logConfig := logging.DefaultConfig()
	logConfig.Output = stderr
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := driver.DefaultParams()
	params.MaxStepsPerExpr = *maxSteps
	params.Logger = logger

	d, err := driver.New(params)
	if err != nil {
		fmt.Fprintf(stderr, "gen-forest: %v\n", err)
		return 2
	}
	defer d.Terminate()

	opts := forest.Options{NoLabels: *noLabels}
	if *progress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(stderr, "\revaluated %d/%d", done, total)
			if done == total {
				fmt.Fprintln(stderr)
			}
		}
	}

	out := bufio.NewWriter(stdout)
	if err := forest.Run(context.Background(), d, symbolCount, opts, out); err != nil {
		fmt.Fprintf(stderr, "gen-forest: %v\n", err)
		return 2
	}
	if err := out.Flush(); err != nil {
		fmt.Fprintf(stderr, "gen-forest: %v\n", err)
		return 2
	}
	return 0
}
