package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/step"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Contract step approval commands",
	}

	cmd.AddCommand(newStepDecisionCmd("approve", models.DecisionApproved))
	cmd.AddCommand(newStepDecisionCmd("reject", models.DecisionRejected))
	cmd.AddCommand(newStepFilesCmd())
	return cmd
}

func newStepDecisionCmd(use string, decision models.Decision) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   use + " <step-id>",
		Short: fmt.Sprintf("Record the --as user's %s decision on a step", decision),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			svc := step.NewService(e.db, e.notifier, e.verifier)
			res, err := svc.SubmitApproval(actorContext(cmd), args[0], step.SubmitOpts{Decision: decision, Note: note})
			if err != nil {
				return err
			}
			printStepResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note recorded with the decision")
	return cmd
}

func newStepFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <step-id> <object-key>...",
		Short: "Attach object-store keys to the active step",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			svc := step.NewService(e.db, e.notifier, e.verifier)
			res, err := svc.AttachFiles(actorContext(cmd), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Step %s now has %d file(s)\n", res.Step.ID, len(res.Step.Files))
			return nil
		},
	}
}

func printStepResult(out io.Writer, res *step.Result) {
	fmt.Fprintf(out, "Step %s (%s) is %s\n", res.Step.ID, res.Step.Kind, res.Step.Status)
	if res.Contract != nil {
		fmt.Fprintf(out, "Contract %s is %s at step %d\n", res.Contract.ID, res.Contract.Status, res.Contract.CurrentStep)
	}
}
