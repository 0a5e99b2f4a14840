package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/offer"
	"github.com/zulandar/dealyard/internal/proposal"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Negotiation thread commands",
	}

	cmd.AddCommand(newMessagePostCmd())
	cmd.AddCommand(newMessageListCmd())
	return cmd
}

func newMessagePostCmd() *cobra.Command {
	var (
		body        string
		attachments []string
		amount      int64
		currency    string
		terms       string
	)

	cmd := &cobra.Command{
		Use:   "post <proposal-id>",
		Short: "Post a message, optionally carrying a price offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := proposal.PostOpts{Body: body, Attachments: attachments}
			if cmd.Flags().Changed("amount") {
				opts.Offer = &offer.CreateOpts{Amount: amount, Currency: currency, Terms: terms}
			}
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			msg, err := proposal.PostMessage(actorContext(cmd), gormDB, args[0], opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Posted message #%d to %s\n", msg.Seq, msg.ProposalID)
			if msg.Offer != nil {
				fmt.Fprintf(out, "Offer %s: %s\n", msg.Offer.ID, money(msg.Offer.Amount, msg.Offer.Currency))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "message text")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "attachment object key (repeatable)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "offer amount in minor currency units")
	cmd.Flags().StringVar(&currency, "currency", "", "offer currency (defaults to the proposal's)")
	cmd.Flags().StringVar(&terms, "terms", "", "offer terms")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <proposal-id>",
		Short: "Show a proposal's thread in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			msgs, err := proposal.ListMessages(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tAUTHOR\tOFFER\tBODY")
			for _, m := range msgs {
				o := "-"
				if m.Offer != nil {
					o = fmt.Sprintf("%s %s (%s)", m.Offer.ID, money(m.Offer.Amount, m.Offer.Currency), m.Offer.Status)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Seq, m.AuthorID, o, truncate(m.Body, 60))
			}
			return w.Flush()
		},
	}
}
