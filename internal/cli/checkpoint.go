package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create, restore, list, and delete registry checkpoints",
}

var checkpointTriggerFlag string
var checkpointListLimitFlag int

func init() {
	checkpointCreateCmd.Flags().StringVar(&checkpointTriggerFlag, "trigger", "manual", "what caused this checkpoint")
	checkpointListCmd.Flags().IntVar(&checkpointListLimitFlag, "limit", 20, "maximum checkpoints to list")
	checkpointCmd.AddCommand(checkpointCreateCmd, checkpointRestoreCmd, checkpointListCmd, checkpointDeleteCmd)
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the current registry state",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		cp, err := k.SaveCheckpoint(checkpointTriggerFlag)
		if err != nil {
			return err
		}
		fmt.Println(cp.CheckpointID)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore a checkpoint by id, or the latest if id is omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		cp, err := k.RestoreCheckpoint(id)
		if err != nil {
			return err
		}
		if cp == nil {
			return fmt.Errorf("no checkpoint found")
		}
		fmt.Printf("restored %s (trigger=%s)\n", cp.CheckpointID, cp.Trigger)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		entries, err := k.Checkpoints.List("", checkpointListLimitFlag)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.CheckpointID, e.Trigger, e.CreatedAt)
		}
		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		deleted, err := k.Checkpoints.Delete(args[0])
		if err != nil {
			return err
		}
		fmt.Println(deleted)
		return nil
	},
}
