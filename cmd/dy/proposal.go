package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/proposal"
)

func newProposalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Proposal management commands",
	}

	cmd.AddCommand(newProposalCreateCmd())
	cmd.AddCommand(newProposalListCmd())
	cmd.AddCommand(newProposalShowCmd())
	cmd.AddCommand(newProposalTransitionCmd())
	return cmd
}

func newProposalCreateCmd() *cobra.Command {
	var (
		kind        string
		subject     string
		counterpart string
		title       string
		description string
		terms       string
		budget      int64
		currency    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a new proposal as the --as user",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := proposal.CreateOpts{
				Kind:          models.ProposalKind(kind),
				SubjectID:     subject,
				CounterpartID: counterpart,
				Title:         title,
				Description:   description,
				Terms:         terms,
				Currency:      currency,
			}
			if cmd.Flags().Changed("budget") {
				opts.Budget = &budget
			}
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			p, err := proposal.Create(actorContext(cmd), gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created proposal %s (%s, %s)\n", p.ID, p.Kind, p.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "technology", "proposal kind (technology, project, demand)")
	cmd.Flags().StringVar(&subject, "subject", "", "technology, project, or demand ID (required)")
	cmd.Flags().StringVar(&counterpart, "counterpart", "", "counterpart user ID (derived from the first reply if empty)")
	cmd.Flags().StringVar(&title, "title", "", "short title")
	cmd.Flags().StringVar(&description, "description", "", "detailed description")
	cmd.Flags().StringVar(&terms, "terms", "", "proposed terms")
	cmd.Flags().Int64Var(&budget, "budget", 0, "budget in minor currency units")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newProposalListCmd() *cobra.Command {
	var status, kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals the --as user takes part in",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			ctx := actorContext(cmd)
			list, err := proposal.List(ctx, gormDB, proposal.ListFilters{
				UserID: identity.UserID(ctx),
				Status: models.ProposalStatus(status),
				Kind:   models.ProposalKind(kind),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No proposals found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tREQUESTER\tCOUNTERPART\tTITLE")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Kind, p.Status, p.RequesterID, dash(p.CounterpartID), truncate(p.Title, 40))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	return cmd
}

func newProposalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			p, err := proposal.Get(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			printProposal(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newProposalTransitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a proposal to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			p, err := proposal.Transition(actorContext(cmd), gormDB, args[0], models.ProposalStatus(args[1]))
			if err != nil {
				if p != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Proposal %s remains %s\n", p.ID, p.Status)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Proposal %s is now %s\n", p.ID, p.Status)
			return nil
		},
	}
}

func printProposal(out io.Writer, p *models.Proposal) {
	fmt.Fprintf(out, "Proposal:    %s\n", p.ID)
	fmt.Fprintf(out, "Kind:        %s\n", p.Kind)
	fmt.Fprintf(out, "Status:      %s\n", p.Status)
	fmt.Fprintf(out, "Subject:     %s\n", p.SubjectID)
	fmt.Fprintf(out, "Requester:   %s\n", p.RequesterID)
	fmt.Fprintf(out, "Counterpart: %s\n", dash(p.CounterpartID))
	if p.Title != "" {
		fmt.Fprintf(out, "Title:       %s\n", p.Title)
	}
	if p.Budget != nil {
		fmt.Fprintf(out, "Budget:      %s\n", money(*p.Budget, p.Currency))
	}
	if p.AcceptedOfferID != nil {
		fmt.Fprintf(out, "Accepted:    %s\n", *p.AcceptedOfferID)
	}
	if p.Description != "" {
		fmt.Fprintf(out, "\n%s\n", p.Description)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// money formats minor units as "1234.56 USD".
func money(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency))
}
