package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/televibecode/televibe/internal/paths"
	"github.com/televibecode/televibe/internal/store"
)

func newSessionsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions known to this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.ForProject(rootFlags.root)
			st, err := store.Open(p.StateDB())
			if err != nil {
				return err
			}
			defer st.Close()

			var sessions []store.Session
			if all {
				sessions, err = st.AllSessions()
			} else {
				sessions, err = st.ActiveSessions()
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tMODE\tBRANCH\tJOB\tLAST ACTIVITY")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.State, s.Mode, s.Branch, s.CurrentJobID, s.LastActivityAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include closed sessions")
	return cmd
}
