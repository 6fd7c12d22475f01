package main

import (
	"os"

	"financeflow/internal/cli"
	"financeflow/internal/commands"
)

func main() {
	cli.LoadEnvFile()

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
