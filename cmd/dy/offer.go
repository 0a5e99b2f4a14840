package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/offer"
)

func newOfferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Offer ledger commands",
	}

	cmd.AddCommand(newOfferAcceptCmd())
	cmd.AddCommand(newOfferRejectCmd())
	cmd.AddCommand(newOfferListCmd())
	return cmd
}

func newOfferAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <offer-id>",
		Short: "Accept an offer and form its contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			res, err := offer.NewService(e.db, e.notifier).Accept(actorContext(cmd), args[0])
			if err != nil {
				return err
			}
			printOfferResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newOfferRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <offer-id>",
		Short: "Reject a pending offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			res, err := offer.NewService(e.db, e.notifier).Reject(actorContext(cmd), args[0])
			if err != nil {
				return err
			}
			printOfferResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newOfferListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <proposal-id>",
		Short: "List a proposal's offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			offers, err := offer.ListByProposal(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(offers) == 0 {
				fmt.Fprintln(out, "No offers.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAUTHOR\tAMOUNT\tSTATUS")
			for _, o := range offers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ID, o.AuthorID, money(o.Amount, o.Currency), o.Status)
			}
			return w.Flush()
		},
	}
}

func printOfferResult(out io.Writer, res *offer.Result) {
	fmt.Fprintf(out, "Offer %s is %s\n", res.Offer.ID, res.Offer.Status)
	if res.Contract != nil {
		fmt.Fprintf(out, "Contract %s (%s) between %s and %s\n", res.Contract.ID, res.Contract.Status, res.Contract.UserA, res.Contract.UserB)
	}
}
