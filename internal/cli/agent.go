package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gastown-labs/orchkernel/internal/terminal"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Register, list, and remove agents",
}

var agentTeamsFlag string

func init() {
	agentRegisterCmd.Flags().StringVar(&agentTeamsFlag, "teams", "", "comma-separated team names")
	agentListCmd.Flags().StringVar(&teamFlag, "team", "", "filter by team")
	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentRemoveCmd)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register [name] [pane-id]",
	Short: "Register an agent bound to a pane",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		agent, err := k.Registry.Register(args[0], terminal.PaneHandle(args[1]), splitCSV(agentTeamsFlag), nil)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", agent.Name, agent.PaneID)
		return nil
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		for _, a := range k.Registry.ListAgents(teamFlag) {
			fmt.Printf("%s\t%s\t%s\n", a.Name, a.PaneID, strings.Join(a.Teams, ","))
		}
		return nil
	},
}

var agentRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		removed, err := k.Registry.RemoveAgent(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("agent %q not found", args[0])
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}
