// Command orchctl is the command-line entry point over the orchestration
// kernel (internal/cli).
package main

import (
	"os"

	"github.com/gastown-labs/orchkernel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
