package main

import (
	"os"

	"leaveflow/cmd/server/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
