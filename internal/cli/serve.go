package cli

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/internal/authztest"
	"github.com/ceyewan/authzkit/xerrors"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		grpcAddr string
		restAddr string
		seed     []string
		defines  []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory authorization service for local development",
		Long: `Serve starts an in-memory authorization service speaking both the gRPC
and the REST protocol. State is lost on exit.

Permissions not defined with --define are granted by the relation of the
same name.

Examples:
  authzctl serve --seed 'doc:1#owner@user:alice'
  authzctl serve --define 'doc.view=viewer,owner' --rest-addr ''
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend := authztest.NewBackend()
			for _, d := range defines {
				resourceType, permission, relations, err := parseDefine(d)
				if err != nil {
					return err
				}
				backend.DefinePermission(resourceType, permission, relations...)
			}
			rels, err := parseRelationships(seed)
			if err != nil {
				return err
			}
			backend.Seed(rels...)

			logger, err := a.logger(cmd)
			if err != nil {
				return err
			}
			if !a.flags.verbose {
				_ = logger.SetLevel(clog.InfoLevel)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return backend.Serve(ctx, grpcAddr, restAddr, logger)
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50051", "gRPC listen address, empty to disable")
	cmd.Flags().StringVar(&restAddr, "rest-addr", ":8080", "REST listen address, empty to disable")
	cmd.Flags().StringArrayVar(&seed, "seed", nil, "Relationship to load at startup (repeatable)")
	cmd.Flags().StringArrayVar(&defines, "define", nil, "Permission definition type.permission=relation,... (repeatable)")
	return cmd
}

// parseDefine 解析 "doc.view=viewer,owner"
func parseDefine(s string) (string, string, []string, error) {
	left, right, ok := strings.Cut(s, "=")
	resourceType, permission, ok2 := strings.Cut(left, ".")
	if !ok || !ok2 || resourceType == "" || permission == "" || right == "" {
		return "", "", nil, xerrors.Newf(xerrors.KindInvalidArgument, "malformed permission definition %q", s)
	}
	return resourceType, permission, strings.Split(right, ","), nil
}
