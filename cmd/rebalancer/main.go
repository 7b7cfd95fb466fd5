// Command rebalancer is the thin CLI entrypoint wiring the scanner,
// planner, executor, metrics store and scheduler together. It carries no
// behavior of its own beyond flag parsing and collaborator construction.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ee, ok := err.(interface{ ExitCode() int }); ok {
		return ee.ExitCode()
	}
	return 1
}
