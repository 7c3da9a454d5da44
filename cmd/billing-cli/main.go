package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/workspace-billing/pkg/cli"
)

func main() {
	if level := os.Getenv("BILLING_LOG_LEVEL"); level != "" {
		cli.SetLogLevel(level)
	}

	if err := cli.NewRootCommand().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
