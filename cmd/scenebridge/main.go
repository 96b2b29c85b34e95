package main

import (
	"os"

	"github.com/AltairaLabs/scenebridge-mcp/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
