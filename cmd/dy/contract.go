package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/models"
)

func newContractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Contract commands",
	}

	cmd.AddCommand(newContractShowCmd())
	cmd.AddCommand(newContractListCmd())
	return cmd
}

func newContractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract with its steps and approvals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			c, err := contract.Get(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			printContract(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func newContractListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts the --as user is party to",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			ctx := actorContext(cmd)
			list, err := contract.List(ctx, gormDB, contract.ListFilters{
				UserID: identity.UserID(ctx),
				Status: models.ContractStatus(status),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No contracts found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROPOSAL\tSTATUS\tSTEP\tA\tB")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n", c.ID, c.ProposalID, c.Status, c.CurrentStep, len(models.StepSequence), c.UserA, c.UserB)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func printContract(out io.Writer, c *models.Contract) {
	fmt.Fprintf(out, "Contract: %s\n", c.ID)
	fmt.Fprintf(out, "Proposal: %s\n", c.ProposalID)
	fmt.Fprintf(out, "Offer:    %s\n", c.OfferID)
	fmt.Fprintf(out, "Parties:  A=%s B=%s\n", c.UserA, c.UserB)
	fmt.Fprintf(out, "Status:   %s\n", c.Status)
	if c.SignedDocument != "" {
		fmt.Fprintf(out, "Signed:   %s\n", c.SignedDocument)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTEP\tID\tSTATUS\tA\tB\tFILES")
	for _, st := range c.Steps {
		decisions := map[models.Party]models.Decision{}
		for _, a := range st.Approvals {
			decisions[a.Party] = a.Decision
		}
		marker := " "
		if st.Position == c.CurrentStep && !c.Status.Terminal() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%d\t%s\t%s\t%s\t%s\t%s\t%s\n", marker, st.Position, st.Kind, st.ID, st.Status,
			decisions[models.PartyA], decisions[models.PartyB], dash(strings.Join(st.Files, ",")))
	}
	w.Flush()
}
