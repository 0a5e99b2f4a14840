package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfig = "dealyard.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dy",
		Short:        "Dealyard: technology-transfer negotiation and contracts",
		Long:         "Dealyard runs proposals through negotiation, offer acceptance, and bilateral contract execution.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfig, "path to Dealyard config file")
	cmd.PersistentFlags().String("as", "", "acting user ID")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newProposalCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newOfferCmd())
	cmd.AddCommand(newContractCmd())
	cmd.AddCommand(newStepCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newRemindCmd())
	cmd.AddCommand(newInboxCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dy %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
