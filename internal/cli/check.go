package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/transport"
)

func (a *app) checkCommand() *cobra.Command {
	var (
		consistency string
		require     bool
		with        []string
	)
	cmd := &cobra.Command{
		Use:   "check <subject> <permission> <resource>",
		Short: "Check whether a subject has a permission on a resource",
		Long: `Check evaluates a single permission.

With --with the check is simulated: the given relationships are treated as
present for this evaluation only and nothing is written.

Examples:
  authzctl check user:alice view doc:1
  authzctl check group:eng#member edit doc:1 --consistency <token>
  authzctl check user:bob view doc:1 --with 'doc:1#viewer@user:bob'
`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseCheck(args)
			if err != nil {
				return err
			}
			req.Consistency = consistency

			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()
			ctx := cmd.Context()

			if len(with) > 0 {
				rels, err := parseRelationships(with)
				if err != nil {
					return err
				}
				resp, err := cl.Simulate(ctx, &transport.SimulateRequest{Check: *req, Relationships: rels})
				if err != nil {
					return err
				}
				return a.writer(cmd).Print(resp, &Table{
					Headers: []string{"SUBJECT", "PERMISSION", "RESOURCE", "ALLOWED", "REASON", "SIMULATED"},
					Rows:    [][]string{{args[0], args[1], args[2], strconv.FormatBool(resp.Allowed), resp.Reason, "true"}},
				})
			}

			if require {
				return cl.Require(ctx, req)
			}
			resp, err := cl.Check(ctx, req)
			if err != nil {
				return err
			}
			return a.writer(cmd).Print(resp, &Table{
				Headers: []string{"SUBJECT", "PERMISSION", "RESOURCE", "ALLOWED", "REASON"},
				Rows:    [][]string{{args[0], args[1], args[2], strconv.FormatBool(resp.Allowed), resp.Reason}},
			})
		},
	}
	cmd.Flags().StringVar(&consistency, "consistency", "", "Consistency token from a previous write")
	cmd.Flags().BoolVar(&require, "require", false, "Exit with an error when the permission is denied")
	cmd.Flags().StringArrayVar(&with, "with", nil, "Relationship assumed present for a simulated check (repeatable)")
	return cmd
}

func parseCheck(args []string) (*transport.CheckRequest, error) {
	sub, err := transport.ParseSubjectRef(args[0])
	if err != nil {
		return nil, err
	}
	res, err := transport.ParseObjectRef(args[2])
	if err != nil {
		return nil, err
	}
	return &transport.CheckRequest{Subject: sub, Permission: args[1], Resource: res}, nil
}

func parseRelationships(args []string) ([]transport.Relationship, error) {
	rels := make([]transport.Relationship, 0, len(args))
	for _, s := range args {
		r, err := transport.ParseRelationship(s)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, nil
}
