// Package main is the entry point for the session distribution core's
// command-line tooling.
package main

import (
	"fmt"
	"os"

	"github.com/stacklok/gridcore/cmd/gridctl/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
