package main

import (
	"github.com/spf13/cobra"

	"fieldgate.dev/internal/access"
)

var (
	checkUser   string
	checkToken  string
	checkObject string
	checkAction string
	checkRecord string
	checkOwner  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve one access decision",
	Long: `Resolve one access decision and print it as JSON.

Without --record the check stops at the profile's object permissions.
With --record (and --owner) the full record cascade runs: ownership, role
hierarchy, organization-wide default, sharing rules and manual shares.

Exits 1 when the decision is deny.`,
	Example: `  # May this user create invoices?
  fieldgate check --user rep.east@northwind.test --object invoice --action create

  # May this user update a specific record owned by someone else?
  fieldgate check --user vp.sales@northwind.test --object invoice --action update \
      --record inv-1001 --owner rep.east@northwind.test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		p, err := principalFor(ctx, st, checkUser, checkToken)
		if err != nil {
			return err
		}
		resolver, err := access.NewResolver(st)
		if err != nil {
			return err
		}

		action := access.Action(checkAction)
		var d access.Decision
		if checkRecord != "" {
			ownerID, err := ownerIDFor(ctx, st, checkOwner)
			if err != nil {
				return err
			}
			d, err = resolver.AuthorizeRecord(ctx, p, checkObject, action, checkRecord, ownerID)
			if err != nil {
				return err
			}
		} else {
			d, err = resolver.Authorize(ctx, p, checkObject, action)
			if err != nil {
				return err
			}
		}

		if err := printJSON(d); err != nil {
			return err
		}
		if !d.Allowed {
			return errDenied
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkUser, "user", "", "id or email of the acting user")
	checkCmd.Flags().StringVar(&checkToken, "token", "", "signed principal token (instead of --user)")
	checkCmd.Flags().StringVar(&checkObject, "object", "", "object type, e.g. invoice")
	checkCmd.Flags().StringVar(&checkAction, "action", "read", "create, read, update or delete")
	checkCmd.Flags().StringVar(&checkRecord, "record", "", "record id for a record-level check")
	checkCmd.Flags().StringVar(&checkOwner, "owner", "", "id or email of the record owner (with --record)")
	_ = checkCmd.MarkFlagRequired("object")
}
