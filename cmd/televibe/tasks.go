package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/televibecode/televibe/internal/paths"
	"github.com/televibecode/televibe/internal/store"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and sync the project's backlog",
	}
	cmd.AddCommand(newTasksSyncCmd())
	cmd.AddCommand(newTasksListCmd())
	return cmd
}

func newTasksSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Scan the backlog directory and upsert every task into the state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.ForProject(rootFlags.root)
			st, err := store.Open(p.StateDB())
			if err != nil {
				return err
			}
			defer st.Close()

			project, err := ensureProject(st, rootFlags.root)
			if err != nil {
				return err
			}

			n, err := backlogSync(st, *project)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "televibe: synced %d task(s) from %s\n", n, project.TasksDir)
			return nil
		},
	}
}

func newTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending tasks for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.ForProject(rootFlags.root)
			st, err := store.Open(p.StateDB())
			if err != nil {
				return err
			}
			defer st.Close()

			project, err := ensureProject(st, rootFlags.root)
			if err != nil {
				return err
			}

			tasks, err := st.PendingTasksByProject(project.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tSESSION\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.SessionID, t.Title)
			}
			return w.Flush()
		},
	}
}
