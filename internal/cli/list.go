package cli

import (
	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/transport"
)

func (a *app) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List relationships, resources or subjects",
		Long: `List reads every page of the result. --page-size controls how many
items each request asks for.

Examples:
  authzctl list relationships --resource-type doc
  authzctl list resources user:alice view doc
  authzctl list subjects doc:1 view user
`,
	}
	cmd.AddCommand(a.listRelationshipsCommand(), a.listResourcesCommand(), a.listSubjectsCommand())
	return cmd
}

func (a *app) listRelationshipsCommand() *cobra.Command {
	var (
		req      transport.ListRelationshipsRequest
		pageSize int
	)
	cmd := &cobra.Command{
		Use:     "relationships",
		Aliases: []string{"rels"},
		Short:   "List relationships matching a filter",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			req.Page.Limit = pageSize
			items := []transport.Relationship{}
			table := &Table{Headers: []string{"RESOURCE", "RELATION", "SUBJECT"}}
			err = cl.EachRelationship(cmd.Context(), req, func(r transport.Relationship) error {
				items = append(items, r)
				table.Rows = append(table.Rows, []string{r.Resource.String(), r.Relation, r.Subject.String()})
				return nil
			})
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(items, table)
		},
	}
	addFilterFlags(cmd, &req.Filter)
	cmd.Flags().StringVar(&req.Consistency, "consistency", "", "Consistency token from a previous write")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "Items per request")
	return cmd
}

func (a *app) listResourcesCommand() *cobra.Command {
	var (
		consistency string
		pageSize    int
	)
	cmd := &cobra.Command{
		Use:   "resources <subject> <permission> <resource-type>",
		Short: "List resources a subject has a permission on",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := transport.ParseSubjectRef(args[0])
			if err != nil {
				return err
			}
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			req := transport.ListResourcesRequest{
				ResourceType: args[2],
				Permission:   args[1],
				Subject:      sub,
				Page:         transport.Page{Limit: pageSize},
				Consistency:  consistency,
			}
			items := []transport.ObjectRef{}
			table := &Table{Headers: []string{"RESOURCE"}}
			err = cl.EachResource(cmd.Context(), req, func(o transport.ObjectRef) error {
				items = append(items, o)
				table.Rows = append(table.Rows, []string{o.String()})
				return nil
			})
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(items, table)
		},
	}
	cmd.Flags().StringVar(&consistency, "consistency", "", "Consistency token from a previous write")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "Items per request")
	return cmd
}

func (a *app) listSubjectsCommand() *cobra.Command {
	var (
		consistency string
		pageSize    int
	)
	cmd := &cobra.Command{
		Use:   "subjects <resource> <permission> <subject-type>",
		Short: "List subjects with a permission on a resource",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := transport.ParseObjectRef(args[0])
			if err != nil {
				return err
			}
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			req := transport.ListSubjectsRequest{
				Resource:    res,
				Permission:  args[1],
				SubjectType: args[2],
				Page:        transport.Page{Limit: pageSize},
				Consistency: consistency,
			}
			items := []transport.SubjectRef{}
			table := &Table{Headers: []string{"SUBJECT"}}
			err = cl.EachSubject(cmd.Context(), req, func(s transport.SubjectRef) error {
				items = append(items, s)
				table.Rows = append(table.Rows, []string{s.String()})
				return nil
			})
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(items, table)
		},
	}
	cmd.Flags().StringVar(&consistency, "consistency", "", "Consistency token from a previous write")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "Items per request")
	return cmd
}
