package authztest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/transport"
)

// Serve 在 TCP 端口上同时提供 gRPC 和 REST 服务，直到 ctx 结束。
// 地址为空的协议不启动。
func (b *Backend) Serve(ctx context.Context, grpcAddr, restAddr string, logger clog.Logger) error {
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("authztest")
	g, ctx := errgroup.WithContext(ctx)

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		srv := b.NewGRPCServer()
		g.Go(func() error {
			logger.Info("fake backend serving", clog.String("protocol", string(transport.KindGRPC)), clog.String("addr", lis.Addr().String()))
			return srv.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			srv.GracefulStop()
			return nil
		})
	}

	if restAddr != "" {
		srv := &http.Server{Addr: restAddr, Handler: b.RESTHandler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("fake backend serving", clog.String("protocol", string(transport.KindREST)), clog.String("addr", restAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
