package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Store, retrieve, and search the cross-agent memory store",
}

var memoryLimitFlag int

func init() {
	memorySearchCmd.Flags().IntVar(&memoryLimitFlag, "limit", 10, "maximum results")
	memoryCmd.AddCommand(memoryStoreCmd, memoryGetCmd, memoryDeleteCmd, memoryListKeysCmd, memoryListNamespacesCmd, memorySearchCmd, memoryClearCmd, memoryStatsCmd)
}

var memoryStoreCmd = &cobra.Command{
	Use:   "store [namespace] [key] [value-json]",
	Short: "Store a JSON value under namespace/key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		var value any
		if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
			return fmt.Errorf("value must be valid JSON: %w", err)
		}
		return k.Memory.Store(args[0], args[1], value, nil)
	},
}

var memoryGetCmd = &cobra.Command{
	Use:   "get [namespace] [key]",
	Short: "Retrieve a stored value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		rec, err := k.Memory.Retrieve(args[0], args[1])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no value at %s/%s", args[0], args[1])
		}
		fmt.Println(string(rec.Value))
		return nil
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete [namespace] [key]",
	Short: "Delete a stored value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		deleted, err := k.Memory.Delete(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(deleted)
		return nil
	},
}

var memoryListKeysCmd = &cobra.Command{
	Use:   "list-keys [namespace]",
	Short: "List keys in a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		keys, err := k.Memory.ListKeys(args[0])
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}

var memoryListNamespacesCmd = &cobra.Command{
	Use:   "list-namespaces [prefix]",
	Short: "List namespaces under prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		namespaces, err := k.Memory.ListNamespaces(prefix)
		if err != nil {
			return err
		}
		for _, ns := range namespaces {
			fmt.Println(ns)
		}
		return nil
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [namespace] [query]",
	Short: "Search a namespace by substring/full-text match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		results, err := k.Memory.Search(args[0], args[1], memoryLimitFlag)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%.3f %s/%s: %s\n", r.Score, r.Record.Namespace, r.Record.Key, r.MatchContext)
		}
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Delete every key under a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		n, err := k.Memory.ClearNamespace(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d entries\n", n)
		return nil
	},
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		stats, err := k.Memory.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("%d memories across %d namespaces (%s)\n", stats.TotalMemories, stats.TotalNamespaces, stats.BackendPath)
		for _, ns := range stats.TopNamespaces {
			fmt.Printf("  %s: %d\n", ns.Namespace, ns.Count)
		}
		return nil
	},
}
