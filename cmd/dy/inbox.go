package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/notify"
)

func newInboxCmd() *cobra.Command {
	var markSeen bool

	cmd := &cobra.Command{
		Use:   "inbox [notification-id]",
		Short: "Show unseen notifications for the --as user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			as, _ := cmd.Flags().GetString("as")
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid notification id %q", args[0])
				}
				if err := notify.MarkSeen(gormDB, as, uint(id)); err != nil {
					return err
				}
				fmt.Fprintf(out, "Marked %d as seen\n", id)
				return nil
			}

			items, err := notify.Inbox(gormDB, as)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Inbox is empty.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSUBJECT\tENTITY")
			for _, n := range items {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, n.Kind, n.Subject, dash(n.EntityID))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if markSeen {
				for _, n := range items {
					if err := notify.MarkSeen(gormDB, as, n.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&markSeen, "mark-seen", false, "mark every listed notification as seen")
	return cmd
}
