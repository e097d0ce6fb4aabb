package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/televibecode/televibe/internal/paths"
	"github.com/televibecode/televibe/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the state database schema and migrations, creating the database if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.ForProject(rootFlags.root)
			if err := p.EnsureLayout(); err != nil {
				return err
			}
			st, err := store.Open(p.StateDB())
			if err != nil {
				return fmt.Errorf("televibe: migrate: %w", err)
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "televibe: state database up to date at %s\n", p.StateDB())
			return nil
		},
	}
}
