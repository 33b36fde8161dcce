package main

import (
	"github.com/spf13/cobra"

	"fieldgate.dev/internal/access"
)

var (
	fieldsUser   string
	fieldsToken  string
	fieldsObject string
	fieldsField  string
	fieldsMode   string
	fieldsRecord string
	fieldsOwner  string
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List readable fields or check one field",
	Long: `Without --field, list the fields of an object the user can read.
The list is empty when the profile's object gate denies read, regardless
of field grants.

With --field, resolve a single field decision in the given --mode (read or
edit). Adding --record and --owner also requires record visibility, so a
field the profile could read stays hidden on records the user cannot see.

Exits 1 when a single-field decision is deny.`,
	Example: `  # Which invoice fields can this user read?
  fieldgate fields --user rep.east@northwind.test --object invoice

  # May this user edit the amount on a record they own?
  fieldgate fields --user rep.east@northwind.test --object invoice \
      --field amount --mode edit --record inv-1001 --owner rep.east@northwind.test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		p, err := principalFor(ctx, st, fieldsUser, fieldsToken)
		if err != nil {
			return err
		}
		resolver, err := access.NewResolver(st)
		if err != nil {
			return err
		}

		if fieldsField == "" {
			visible, err := resolver.VisibleFields(ctx, p, fieldsObject)
			if err != nil {
				return err
			}
			out := struct {
				Object string   `json:"object"`
				Fields []string `json:"fields"`
			}{fieldsObject, visible}
			return printJSON(out)
		}

		mode := access.FieldMode(fieldsMode)
		var d access.Decision
		if fieldsRecord != "" {
			ownerID, err := ownerIDFor(ctx, st, fieldsOwner)
			if err != nil {
				return err
			}
			d, err = resolver.AuthorizeRecordField(ctx, p, fieldsObject, fieldsField, mode, fieldsRecord, ownerID)
			if err != nil {
				return err
			}
		} else {
			d, err = resolver.AuthorizeField(ctx, p, fieldsObject, fieldsField, mode)
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
	fieldsCmd.Flags().StringVar(&fieldsUser, "user", "", "id or email of the acting user")
	fieldsCmd.Flags().StringVar(&fieldsToken, "token", "", "signed principal token (instead of --user)")
	fieldsCmd.Flags().StringVar(&fieldsObject, "object", "", "object type, e.g. invoice")
	fieldsCmd.Flags().StringVar(&fieldsField, "field", "", "field name for a single-field check")
	fieldsCmd.Flags().StringVar(&fieldsMode, "mode", "read", "read or edit (with --field)")
	fieldsCmd.Flags().StringVar(&fieldsRecord, "record", "", "record id to scope the field check to")
	fieldsCmd.Flags().StringVar(&fieldsOwner, "owner", "", "id or email of the record owner (with --record)")
	_ = fieldsCmd.MarkFlagRequired("object")
}
