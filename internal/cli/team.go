package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Create and inspect teams",
}

var teamParentFlag string
var teamDescriptionFlag string

func init() {
	teamCreateCmd.Flags().StringVar(&teamDescriptionFlag, "description", "", "team description")
	teamCreateCmd.Flags().StringVar(&teamParentFlag, "parent", "", "parent team name, for nesting")
	teamCmd.AddCommand(teamCreateCmd, teamListCmd, teamChildrenCmd, teamHierarchyCmd)
}

var teamCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a team, optionally nested under a parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		team, err := k.Registry.CreateTeam(args[0], teamDescriptionFlag, teamParentFlag)
		if err != nil {
			return err
		}
		fmt.Println(team.Name)
		return nil
	},
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		for _, t := range k.Registry.ListTeams() {
			fmt.Printf("%s\t%s\t%s\n", t.Name, t.ParentTeam, t.Description)
		}
		return nil
	},
}

var teamChildrenCmd = &cobra.Command{
	Use:   "children [name]",
	Short: "List the direct child teams of a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		for _, t := range k.Registry.ChildTeams(args[0]) {
			fmt.Println(t.Name)
		}
		return nil
	},
}

var teamHierarchyCmd = &cobra.Command{
	Use:   "hierarchy [name]",
	Short: "Print a team's ancestor chain, root first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		fmt.Println(strings.Join(k.Registry.Hierarchy(args[0]), " > "))
		return nil
	},
}
