// Package main is the entry point for the lifecyclectl operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/digiurban/lifecycle/internal/cli"
)

// Set via ldflags: go build -ldflags "-X main.version=1.0.0"
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
