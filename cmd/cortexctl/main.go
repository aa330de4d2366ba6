package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag  string
	userFlag string
	rootCmd  = &cobra.Command{
		Use:   "cortexctl",
		Short: "CLI client for the cortex memory engine REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Engine base URL")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID scope")

	addCmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, _ := cmd.Flags().GetStringSlice("tag")
			return runAdd(apiFlag, userFlag, args[0], tags, os.Stdout)
		},
	}
	addCmd.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")
	rootCmd.AddCommand(addCmd)

	queryCmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Recall memories ranked by relevance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			sectorName, _ := cmd.Flags().GetString("sector")
			tag, _ := cmd.Flags().GetString("tag")
			return runQuery(apiFlag, userFlag, args[0], limit, sectorName, tag, os.Stdout)
		},
	}
	queryCmd.Flags().IntP("limit", "k", 10, "Number of results")
	queryCmd.Flags().String("sector", "", "Restrict to one sector")
	queryCmd.Flags().String("tag", "", "Restrict to one tag")
	rootCmd.AddCommand(queryCmd)

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch one memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(getCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			sectorName, _ := cmd.Flags().GetString("sector")
			cursor, _ := cmd.Flags().GetString("cursor")
			limit, _ := cmd.Flags().GetInt("limit")
			return runList(apiFlag, userFlag, sectorName, cursor, limit, os.Stdout)
		},
	}
	listCmd.Flags().String("sector", "", "Filter by primary sector")
	listCmd.Flags().String("cursor", "", "Pagination cursor")
	listCmd.Flags().IntP("limit", "k", 50, "Page size")
	rootCmd.AddCommand(listCmd)

	reinforceCmd := &cobra.Command{
		Use:   "reinforce [id]",
		Short: "Bump a memory's salience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, _ := cmd.Flags().GetFloat64("delta")
			return runReinforce(apiFlag, args[0], delta, os.Stdout)
		},
	}
	reinforceCmd.Flags().Float64("delta", 0, "Salience delta (engine default when 0)")
	rootCmd.AddCommand(reinforceCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(deleteCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(statsCmd)

	decayCmd := &cobra.Command{
		Use:   "decay",
		Short: "Trigger an on-demand decay sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecay(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(decayCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
