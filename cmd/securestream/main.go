package main

import (
	"os"

	"github.com/opd-ai/securestream/cmd/securestream/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
