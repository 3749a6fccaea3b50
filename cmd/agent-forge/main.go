package main

import (
	"os"

	"github.com/m0nk111/agent-forge-sub002/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
