package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gastown-labs/orchkernel/internal/target"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

var paneCmd = &cobra.Command{
	Use:   "pane",
	Short: "Create, send to, read from, and lock panes",
}

var (
	paneTargetFlag string
	paneNameFlag   string
	agentFlag      string
	teamFlag       string
	pressEnterFlag bool
)

func init() {
	paneCreateCmd.Flags().StringVar(&paneNameFlag, "name", "", "assign a human-readable name to the new pane")

	paneSendCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")
	paneSendCmd.Flags().StringVar(&agentFlag, "agent", "", "agent name")
	paneSendCmd.Flags().StringVar(&teamFlag, "team", "", "team name")
	paneSendCmd.Flags().BoolVar(&pressEnterFlag, "enter", true, "press Enter after sending the text")

	paneReadCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")
	paneReadCmd.Flags().StringVar(&agentFlag, "agent", "", "agent name")

	paneFocusCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")
	paneFocusCmd.Flags().StringVar(&agentFlag, "agent", "", "agent requesting focus, for cooldown bookkeeping")

	paneLockCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")
	paneUnlockCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")

	paneCmd.AddCommand(paneCreateCmd, paneSendCmd, paneReadCmd, paneFocusCmd, paneLockCmd, paneUnlockCmd)
}

var paneCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new pane",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Backend.CreatePane(terminal.CreatePaneOpts{})
		if err != nil {
			return err
		}
		if paneNameFlag != "" {
			if err := k.Backend.SetPaneName(pane, paneNameFlag); err != nil {
				return err
			}
		}
		fmt.Println(pane)
		return nil
	},
}

var paneSendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Send text to a pane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Resolver.Resolve(target.Target{
			PaneID:    terminal.PaneHandle(paneTargetFlag),
			AgentName: agentFlag,
			TeamName:  teamFlag,
		})
		if err != nil {
			return err
		}
		if allowed, owner := k.Guard.CheckWrite(pane, agentFlag); !allowed {
			return fmt.Errorf("pane %s is locked by %s", pane, owner)
		}
		return k.Backend.SendText(pane, args[0], pressEnterFlag)
	},
}

var paneReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a pane's current screen contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Resolver.Resolve(target.Target{
			PaneID:    terminal.PaneHandle(paneTargetFlag),
			AgentName: agentFlag,
		})
		if err != nil {
			return err
		}
		out, err := k.Backend.ReadScreen(pane, k.Config.Capacities.SearchWindowLines)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var paneFocusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Bring a pane to the foreground, honoring the focus cooldown",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Resolver.Resolve(target.Target{PaneID: terminal.PaneHandle(paneTargetFlag)})
		if err != nil {
			return err
		}
		allowed, blocker, remaining := k.Guard.CheckFocus(pane, agentFlag)
		if !allowed {
			return fmt.Errorf("focus cooldown active: %s holds it for %s more", blocker, remaining)
		}
		if err := k.Backend.Focus(pane); err != nil {
			return err
		}
		k.Guard.RecordFocus(pane, agentFlag)
		return nil
	},
}

var paneLockCmd = &cobra.Command{
	Use:   "lock [agent]",
	Short: "Lock a pane for the named agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Resolver.Resolve(target.Target{PaneID: terminal.PaneHandle(paneTargetFlag)})
		if err != nil {
			return err
		}
		acquired, owner := k.Guard.Lock(pane, args[0])
		fmt.Printf("acquired=%v owner=%s\n", acquired, owner)
		return nil
	},
}

var paneUnlockCmd = &cobra.Command{
	Use:   "unlock [agent]",
	Short: "Unlock a pane (empty agent performs an admin override)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		pane, err := k.Resolver.Resolve(target.Target{PaneID: terminal.PaneHandle(paneTargetFlag)})
		if err != nil {
			return err
		}
		agent := ""
		if len(args) == 1 {
			agent = args[0]
		}
		fmt.Println(k.Guard.Unlock(pane, agent))
		return nil
	},
}
