package main

import (
	"github.com/spf13/cobra"

	"fieldgate.dev/internal/access"
)

var (
	explainUser   string
	explainToken  string
	explainObject string
	explainAction string
	explainRecord string
	explainOwner  string
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Trace a record decision through every tier",
	Long: `Resolve a record-level decision and print the trace: one step per
tier in evaluation order (object gate, owner, role hierarchy, org-wide
default, sharing rules, manual share) with the detail that granted or
passed it over.

explain is a diagnostic and exits 0 for both outcomes; use check when the
exit code should reflect the decision.`,
	Example: `  # Why can the VP read a rep's invoice?
  fieldgate explain --user vp.sales@northwind.test --object invoice --action read \
      --record inv-1001 --owner rep.east@northwind.test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		p, err := principalFor(ctx, st, explainUser, explainToken)
		if err != nil {
			return err
		}
		ownerID, err := ownerIDFor(ctx, st, explainOwner)
		if err != nil {
			return err
		}
		resolver, err := access.NewResolver(st)
		if err != nil {
			return err
		}

		d, trace, err := resolver.ExplainRecord(ctx, p, explainObject, access.Action(explainAction), explainRecord, ownerID)
		if err != nil {
			return err
		}

		out := struct {
			Decision access.Decision    `json:"decision"`
			Trace    []access.TraceStep `json:"trace"`
		}{d, trace}
		return printJSON(out)
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainUser, "user", "", "id or email of the acting user")
	explainCmd.Flags().StringVar(&explainToken, "token", "", "signed principal token (instead of --user)")
	explainCmd.Flags().StringVar(&explainObject, "object", "", "object type, e.g. invoice")
	explainCmd.Flags().StringVar(&explainAction, "action", "read", "read, update or delete")
	explainCmd.Flags().StringVar(&explainRecord, "record", "", "record id")
	explainCmd.Flags().StringVar(&explainOwner, "owner", "", "id or email of the record owner")
	_ = explainCmd.MarkFlagRequired("object")
	_ = explainCmd.MarkFlagRequired("record")
	_ = explainCmd.MarkFlagRequired("owner")
}
