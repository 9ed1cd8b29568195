package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexShowTree bool

var indexCmd = &cobra.Command{
	Use:   "index [project-dir]",
	Short: "Build the codebase index and print its summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		_, idx, err := buildIndex(cmd.Context(), cfg, root)
		if err != nil {
			return err
		}
		fmt.Println(idx.Summary())
		if indexShowTree {
			fmt.Println(idx.RenderTree())
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexShowTree, "tree", false, "also print the file tree")
	rootCmd.AddCommand(indexCmd)
}
