package middleware

import (
	"context"
	"strconv"

	"github.com/ceyewan/authzkit/dispatch"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

type route func(ctx context.Context, d *dispatch.Dispatcher, req *Request) (*Response, error)

var routes = map[transport.Operation]route{
	transport.OpCheck: invoke(func(ctx context.Context, t transport.Transport, in *transport.CheckRequest) (*transport.CheckResponse, error) {
		return t.Check(ctx, in)
	}),
	transport.OpCheckBatch: invoke(func(ctx context.Context, t transport.Transport, in *transport.CheckBatchRequest) (*transport.CheckBatchResponse, error) {
		return t.CheckBatch(ctx, in)
	}),
	transport.OpWrite: invoke(func(ctx context.Context, t transport.Transport, in *transport.WriteRequest) (*transport.WriteResponse, error) {
		return t.Write(ctx, in)
	}),
	transport.OpWriteBatch: invoke(func(ctx context.Context, t transport.Transport, in *transport.WriteBatchRequest) (*transport.WriteBatchResponse, error) {
		return t.WriteBatch(ctx, in)
	}),
	transport.OpDelete: invoke(func(ctx context.Context, t transport.Transport, in *transport.DeleteRequest) (*transport.DeleteResponse, error) {
		return t.Delete(ctx, in)
	}),
	transport.OpListRelationships: invoke(func(ctx context.Context, t transport.Transport, in *transport.ListRelationshipsRequest) (*transport.ListRelationshipsResponse, error) {
		return t.ListRelationships(ctx, in)
	}),
	transport.OpListResources: invoke(func(ctx context.Context, t transport.Transport, in *transport.ListResourcesRequest) (*transport.ListResourcesResponse, error) {
		return t.ListResources(ctx, in)
	}),
	transport.OpListSubjects: invoke(func(ctx context.Context, t transport.Transport, in *transport.ListSubjectsRequest) (*transport.ListSubjectsResponse, error) {
		return t.ListSubjects(ctx, in)
	}),
	transport.OpSimulate: invoke(func(ctx context.Context, t transport.Transport, in *transport.SimulateRequest) (*transport.SimulateResponse, error) {
		return t.Simulate(ctx, in)
	}),
	transport.OpHealth: invoke(func(ctx context.Context, t transport.Transport, _ *struct{}) (*struct{}, error) {
		return nil, t.HealthCheck(ctx)
	}),
}

// Dispatcher 返回以调度器为终点的 Handler。
// 请求负载按操作解码为传输层的类型化请求，响应体是编码后的类型化响应，
// 并在响应头中记录实际使用的传输、尝试次数和是否降级。
func Dispatcher(d *dispatch.Dispatcher) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		r, ok := routes[req.Operation]
		if !ok {
			err := xerrors.Newf(xerrors.KindInvalidArgument, "unsupported operation %q", req.Operation)
			return Failure(err), err
		}
		if len(req.Headers) > 0 {
			ctx = transport.WithOutboundHeaders(ctx, req.Headers)
		}
		return r(ctx, d, req)
	}
}

func invoke[Req, Resp any](call func(context.Context, transport.Transport, *Req) (*Resp, error)) route {
	return func(ctx context.Context, d *dispatch.Dispatcher, req *Request) (*Response, error) {
		in := new(Req)
		if len(req.Payload) > 0 {
			if err := Decode(req.Payload, in); err != nil {
				err = xerrors.E(xerrors.KindInvalidArgument, err, "malformed payload").WithOp(string(req.Operation))
				return Failure(err), err
			}
		}

		var out *Resp
		res, err := d.Call(ctx, req.Operation, func(ctx context.Context, t transport.Transport) error {
			var err error
			out, err = call(ctx, t, in)
			return err
		})

		var resp *Response
		if err != nil {
			resp = Failure(err)
		} else {
			var body []byte
			if out != nil {
				if body, err = Encode(out); err != nil {
					resp = Failure(err)
				}
			}
			if err == nil {
				resp = OK(body)
				resp.RequestID = responseRequestID(out)
			}
		}
		if res.Attempts > 0 {
			resp.SetHeader(HeaderTransport, res.Transport.String())
			resp.SetHeader(HeaderAttempts, strconv.Itoa(res.Attempts))
			resp.SetHeader(HeaderFallback, strconv.FormatBool(res.Fallback))
		}
		return resp, err
	}
}

func responseRequestID(v any) string {
	switch r := v.(type) {
	case *transport.CheckResponse:
		return r.RequestID
	case *transport.CheckBatchResponse:
		return r.RequestID
	case *transport.WriteResponse:
		return r.RequestID
	case *transport.WriteBatchResponse:
		return r.RequestID
	case *transport.DeleteResponse:
		return r.RequestID
	case *transport.SimulateResponse:
		return r.RequestID
	}
	return ""
}
