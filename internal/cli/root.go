// Package cli provides the orchctl command-line surface over the
// orchestration kernel: pane/agent/team CRUD, send/read, expect, wait, and
// memory/checkpoint operations (spec "CLI / tool surface": "the core merely
// exposes the operations"). Grounded on gastown's internal/cmd root.go
// Execute()-returns-exit-code pattern.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gastown-labs/orchkernel/internal/config"
	"github.com/gastown-labs/orchkernel/internal/exitcode"
	"github.com/gastown-labs/orchkernel/internal/kernel"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:   "orchctl",
	Short: "orchctl drives the multi-agent terminal orchestration kernel",
	Long: `orchctl is a thin command-line transport over the orchestration kernel:
pane/agent/team management, sending text and special keys, expect-style
pattern waits, wait-for-agent polling, and the cross-agent memory and
checkpoint stores.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "kernel data directory (default: ~/.iterm-mcp)")
	rootCmd.AddCommand(paneCmd, agentCmd, teamCmd, expectCmd, waitCmd, memoryCmd, checkpointCmd)
}

// Execute runs the root command and returns a process exit code (spec §7's
// exit-code taxonomy, surfaced at the transport boundary).
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

// openKernel loads config from dataDirFlag and opens a Kernel over a real
// local-shell terminal backend.
func openKernel() (*kernel.Kernel, error) {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		return nil, err
	}
	backend := terminal.NewLocalBackend("")
	return kernel.Open(cfg, backend)
}
