package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/contractlog"
	"github.com/zulandar/dealyard/internal/models"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Contract log commands",
	}

	cmd.AddCommand(newLogAppendCmd())
	cmd.AddCommand(newLogListCmd())
	return cmd
}

func newLogAppendCmd() *cobra.Command {
	var opts contractlog.AppendOpts
	var status string

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a log entry to a contract or proposal",
		Long: `Appends an audit entry. --done completes the contract once every step is
approved; --status cancelled cancels the contract and its proposal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = models.LogStatus(status)
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			res, err := contractlog.NewService(e.db, e.notifier).Append(actorContext(cmd), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged entry %d (%s)\n", res.Log.ID, res.Log.Status)
			if res.Contract != nil {
				fmt.Fprintf(out, "Contract %s is %s\n", res.Contract.ID, res.Contract.Status)
			}
			if res.Proposal != nil {
				fmt.Fprintf(out, "Proposal %s is %s\n", res.Proposal.ID, res.Proposal.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract ID")
	cmd.Flags().StringVar(&opts.ProposalID, "proposal", "", "proposal ID")
	cmd.Flags().StringVar(&opts.Content, "content", "", "entry text")
	cmd.Flags().StringVar(&opts.Document, "document", "", "supporting document key")
	cmd.Flags().StringVar(&status, "status", "", "pending, completed, or cancelled")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason, for cancellations")
	cmd.Flags().BoolVar(&opts.IsDoneContract, "done", false, "mark the contract done")
	cmd.Flags().BoolVar(&opts.Override, "override", false, "keep the contract open when a step is rejected")
	return cmd
}

func newLogListCmd() *cobra.Command {
	var contractID, proposalID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log entries for a contract or proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			logs, err := contractlog.List(cmd.Context(), gormDB, contractID, proposalID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No log entries.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAUTHOR\tSTATUS\tDONE\tCONTENT")
			for _, l := range logs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n", l.ID, l.AuthorID, l.Status, l.IsDoneContract, truncate(l.Content, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "contract ID")
	cmd.Flags().StringVar(&proposalID, "proposal", "", "proposal ID")
	return cmd
}
