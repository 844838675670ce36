package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	schccontext "lowpan.xyz/schc/internal/context"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a context file",
	Long: `Validate a context file without processing any packets.

This is useful for pre-checking a ruleset before provisioning it to both
ends of a link.

Examples:
  schc validate -f context.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

var validateContextFile string

func init() {
	validateCmd.Flags().StringVarP(&validateContextFile, "file", "f", "",
		"context file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidateCommand() {
	ctx, err := schccontext.Load(validateContextFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fields := 0
	for _, rule := range ctx.Rules {
		fields += len(rule.Fields)
	}
	fmt.Printf("VALID: context %q — parser %s, %d rule(s), %d field descriptor(s), %d-bit rule ids\n",
		ctx.ID, ctx.ParserID, len(ctx.Rules), fields, ctx.RuleIDLength)
}
