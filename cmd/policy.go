package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fastgeoapi/internal/gate"
)

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the default OPA policy",
		Long: `Prints the Rego policy fastgeoapi ships for OPA_ENABLED deployments. It allows
every request, so a policy can be rolled out and tightened incrementally.
Load it into OPA under the package queried by OPA_POLICY_PATH.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), gate.DefaultPolicy)
		},
	}
}

func init() {
	rootCmd.AddCommand(newPolicyCmd())
}
