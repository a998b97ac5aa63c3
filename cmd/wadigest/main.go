package main

import (
	"os"

	"github.com/solvaholic/wadigest/cmd/wadigest/commands"
	"github.com/solvaholic/wadigest/internal/logger"
)

func main() {
	err := commands.Execute()
	logger.Close()
	if err != nil {
		commands.OutputError("%v", err)
		os.Exit(1)
	}
}
