package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/transport"
)

func (a *app) writeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write <relationship>...",
		Short: "Write relationships",
		Long: `Write stores relationships in a single request and prints the
consistency token of the write.

A relationship is written as type:id#relation@subject, where subject is
type:id or a subject set type:id#relation.

Examples:
  authzctl write 'doc:1#owner@user:alice'
  authzctl write 'doc:1#viewer@group:eng#member' 'group:eng#member@user:bob'
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rels, err := parseRelationships(args)
			if err != nil {
				return err
			}
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			resp, err := cl.Write(cmd.Context(), &transport.WriteRequest{Relationships: rels})
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(resp, &Table{
				Headers: []string{"WRITTEN", "CONSISTENCY TOKEN"},
				Rows:    [][]string{{strconv.Itoa(len(rels)), resp.ConsistencyToken}},
			})
		},
	}
}

func (a *app) deleteCommand() *cobra.Command {
	var filter transport.RelationshipFilter
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete relationships matching a filter",
		Long: `Delete removes every relationship matching the filter. At least one
filter flag is required.

Examples:
  authzctl delete --resource-type doc --resource-id 1
  authzctl delete --subject-type user --subject-id alice --relation viewer
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			resp, err := cl.Delete(cmd.Context(), &transport.DeleteRequest{Filter: filter})
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(resp, &Table{
				Headers: []string{"DELETED", "CONSISTENCY TOKEN"},
				Rows:    [][]string{{strconv.Itoa(resp.Deleted), resp.ConsistencyToken}},
			})
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func addFilterFlags(cmd *cobra.Command, f *transport.RelationshipFilter) {
	fs := cmd.Flags()
	fs.StringVar(&f.ResourceType, "resource-type", "", "Resource type")
	fs.StringVar(&f.ResourceID, "resource-id", "", "Resource id")
	fs.StringVar(&f.Relation, "relation", "", "Relation")
	fs.StringVar(&f.SubjectType, "subject-type", "", "Subject type")
	fs.StringVar(&f.SubjectID, "subject-id", "", "Subject id")
}
