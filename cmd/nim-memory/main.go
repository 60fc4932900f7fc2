// Package main is the entry point for the nim-memory CLI.
package main

import (
	"context"
	"os"

	"github.com/becomeliminal/nim-memory/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
