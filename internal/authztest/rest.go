package authztest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/transport/resttransport"
	"github.com/ceyewan/authzkit/xerrors"
)

// kindStatus 统一错误类型到 HTTP 状态码，与客户端映射表互逆
func kindStatus(k xerrors.Kind) int {
	switch k {
	case xerrors.KindInvalidArgument:
		return http.StatusBadRequest
	case xerrors.KindUnauthorized:
		return http.StatusUnauthorized
	case xerrors.KindForbidden:
		return http.StatusForbidden
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindSchemaViolation:
		return http.StatusUnprocessableEntity
	case xerrors.KindRateLimited:
		return http.StatusTooManyRequests
	case xerrors.KindCancelled:
		return 499
	case xerrors.KindUnavailable:
		return http.StatusServiceUnavailable
	case xerrors.KindTimeout:
		return http.StatusGatewayTimeout
	case xerrors.KindProtocol:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (b *Backend) restHandler(op transport.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, transport.ErrorBody{Code: "invalid_argument", Message: err.Error()})
			return
		}
		headers := make(map[string]string, len(c.Request.Header))
		for k, v := range c.Request.Header {
			if len(v) > 0 {
				headers[strings.ToLower(k)] = v[0]
			}
		}

		res, reqID, err := b.Do(c.Request.Context(), transport.KindREST, op, headers, body)
		c.Header(transport.HeaderRequestID, reqID)
		if err == nil {
			c.JSON(http.StatusOK, res)
			return
		}

		kind := xerrors.KindOf(err)
		if kind == xerrors.KindConnection {
			// 直接断开连接，模拟网络故障
			if conn, _, herr := c.Writer.Hijack(); herr == nil {
				_ = conn.Close()
				return
			}
		}
		if d, ok := xerrors.RetryAfterOf(err); ok {
			secs := int((d + 999_999_999) / 1_000_000_000)
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		msg := err.Error()
		var e *xerrors.Error
		if xerrors.As(err, &e) && e.Message != "" {
			msg = e.Message
		}
		c.JSON(kindStatus(kind), transport.ErrorBody{Code: kind.String(), Message: msg, RequestID: reqID})
	}
}

// RESTHandler 返回鉴权服务的 HTTP 处理器，明文连接上同时接受 h2c
func (b *Backend) RESTHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), trace.GinMiddleware("authztest"))

	r.GET(resttransport.PathHealth, b.restHandler(transport.OpHealth))
	r.POST(resttransport.PathEvaluate, b.restHandler(transport.OpCheck))
	r.POST(resttransport.PathEvaluateBatch, b.restHandler(transport.OpCheckBatch))
	r.POST(resttransport.PathWrite, b.restHandler(transport.OpWrite))
	r.POST(resttransport.PathWriteBatch, b.restHandler(transport.OpWriteBatch))
	r.POST(resttransport.PathDelete, b.restHandler(transport.OpDelete))
	r.POST(resttransport.PathListRelationships, b.restHandler(transport.OpListRelationships))
	r.POST(resttransport.PathListResources, b.restHandler(transport.OpListResources))
	r.POST(resttransport.PathListSubjects, b.restHandler(transport.OpListSubjects))
	r.POST(resttransport.PathSimulate, b.restHandler(transport.OpSimulate))

	return h2c.NewHandler(r, &http2.Server{})
}

// StartREST 在 httptest 服务器上启动后端，测试结束时自动关闭
func StartREST(t testing.TB, b *Backend) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(b.RESTHandler())
	t.Cleanup(srv.Close)
	return srv
}
