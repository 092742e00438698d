package tracectx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const sampleTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestParseTraceparent(t *testing.T) {
	tc, err := ParseTraceparent(sampleTraceparent)
	require.NoError(t, err)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tc.TraceID.String())
	assert.Equal(t, "00f067aa0ba902b7", tc.SpanID.String())
	assert.True(t, tc.IsSampled())
	assert.False(t, tc.HasParent())
	assert.Equal(t, sampleTraceparent, tc.Traceparent())
}

func TestParseTraceparent_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"字段数不足", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7", ErrMalformed},
		{"字段数过多", sampleTraceparent + "-00", ErrMalformed},
		{"不支持的版本", "01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", ErrUnsupportedVersion},
		{"非法版本", "zz-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", ErrMalformed},
		{"trace id 长度错误", "00-4bf92f3577b34da6a3ce929d0e0e47-00f067aa0ba902b7-01", ErrMalformed},
		{"span id 长度错误", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902-01", ErrMalformed},
		{"flags 长度错误", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1", ErrMalformed},
		{"非法十六进制", "00-4bf92f3577b34da6a3ce929d0e0e47zz-00f067aa0ba902b7-01", ErrMalformed},
		{"大写十六进制", "00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01", ErrMalformed},
		{"全零 trace id", "00-00000000000000000000000000000000-00f067aa0ba902b7-01", ErrZeroID},
		{"全零 span id", "00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", ErrZeroID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTraceparent(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseB3(t *testing.T) {
	t.Run("完整单头", func(t *testing.T) {
		in := "4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1-05e3ac9a4f6e3b90"
		tc, err := ParseB3(in)
		require.NoError(t, err)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tc.TraceID.String())
		assert.Equal(t, "00f067aa0ba902b7", tc.SpanID.String())
		assert.Equal(t, "05e3ac9a4f6e3b90", tc.ParentSpanID.String())
		assert.True(t, tc.IsSampled())
		assert.Equal(t, in, tc.B3())
	})

	t.Run("64 位 trace id 左侧补零", func(t *testing.T) {
		tc, err := ParseB3("a3ce929d0e0e4736-00f067aa0ba902b7-0")
		require.NoError(t, err)
		assert.Equal(t, "0000000000000000a3ce929d0e0e4736", tc.TraceID.String())
		assert.False(t, tc.IsSampled())
	})

	t.Run("延迟采样", func(t *testing.T) {
		tc, err := ParseB3("4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7")
		require.NoError(t, err)
		assert.False(t, tc.IsSampled())
	})

	t.Run("debug 视为采样", func(t *testing.T) {
		tc, err := ParseB3("4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-d")
		require.NoError(t, err)
		assert.True(t, tc.IsSampled())
	})

	t.Run("单字符简写创建新根", func(t *testing.T) {
		for in, sampled := range map[string]bool{"0": false, "1": true, "d": true} {
			tc, err := ParseB3(in)
			require.NoError(t, err)
			assert.True(t, tc.IsValid())
			assert.False(t, tc.HasParent())
			assert.Equal(t, sampled, tc.IsSampled(), in)
		}
	})
}

func TestParseB3_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"空串", "", ErrMalformed},
		{"只有 trace id", "4bf92f3577b34da6a3ce929d0e0e4736", ErrMalformed},
		{"字段过多", "4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1-05e3ac9a4f6e3b90-x", ErrMalformed},
		{"trace id 长度错误", "4bf92f3577b34da6-00f067aa0ba902b7-1x", ErrMalformed},
		{"非法采样位", "4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-2", ErrMalformed},
		{"非法十六进制", "4bf92f3577b34da6a3ce929d0e0e47zz-00f067aa0ba902b7-1", ErrMalformed},
		{"全零 trace id", "00000000000000000000000000000000-00f067aa0ba902b7-1", ErrZeroID},
		{"全零 span id", "4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-1", ErrZeroID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseB3(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestB3Multi(t *testing.T) {
	tc, err := ParseTraceparent(sampleTraceparent)
	require.NoError(t, err)
	child := tc.Child()

	carrier := propagation.MapCarrier{}
	Inject(carrier, child, FormatB3Multi)
	assert.Equal(t, "1", carrier.Get(HeaderB3Sampled))
	assert.Equal(t, tc.SpanID.String(), carrier.Get(HeaderB3ParentSpanID))

	got, err := ParseB3Multi(carrier.Get)
	require.NoError(t, err)
	assert.Equal(t, child, got)

	t.Run("只有采样头时创建新根", func(t *testing.T) {
		root, err := ParseB3Multi(propagation.MapCarrier{HeaderB3Sampled: "true"}.Get)
		require.NoError(t, err)
		assert.True(t, root.IsSampled())
	})

	t.Run("缺少 span id", func(t *testing.T) {
		_, err := ParseB3Multi(propagation.MapCarrier{HeaderB3TraceID: tc.TraceID.String()}.Get)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("全零 id", func(t *testing.T) {
		_, err := ParseB3Multi(propagation.MapCarrier{
			HeaderB3TraceID: strings.Repeat("0", 32),
			HeaderB3SpanID:  "00f067aa0ba902b7",
		}.Get)
		assert.ErrorIs(t, err, ErrZeroID)
	})

	t.Run("没有任何头", func(t *testing.T) {
		_, err := ParseB3Multi(propagation.MapCarrier{}.Get)
		assert.ErrorIs(t, err, ErrNoTraceContext)
	})
}

func TestRoundTrip_AllFormats(t *testing.T) {
	for _, sampled := range []bool{true, false} {
		root := NewRoot(sampled)
		for _, f := range []Format{FormatW3C, FormatB3Single, FormatB3Multi} {
			t.Run(f.String(), func(t *testing.T) {
				carrier := propagation.MapCarrier{}
				Inject(carrier, root, f)

				got, err := Extract(carrier, f)
				require.NoError(t, err)
				assert.Equal(t, root.TraceID, got.TraceID)
				assert.Equal(t, root.SpanID, got.SpanID)
				assert.Equal(t, root.IsSampled(), got.IsSampled())
			})
		}
	}
}

func TestTracestatePassThrough(t *testing.T) {
	carrier := propagation.MapCarrier{
		HeaderTraceparent: sampleTraceparent,
		HeaderTracestate:  "congo=t61rcWkgMzE,rojo=00f067aa0ba902b7",
	}
	tc, err := Extract(carrier, FormatW3C)
	require.NoError(t, err)
	assert.Equal(t, "congo=t61rcWkgMzE,rojo=00f067aa0ba902b7", tc.TraceState)

	out := propagation.MapCarrier{}
	Inject(out, tc, FormatW3C)
	assert.Equal(t, carrier, out)
}

func TestExtract_Order(t *testing.T) {
	w3c, err := ParseTraceparent(sampleTraceparent)
	require.NoError(t, err)
	b3 := NewRoot(false)

	carrier := propagation.MapCarrier{}
	Inject(carrier, w3c, FormatW3C)
	Inject(carrier, b3, FormatB3Single)

	got, err := Extract(carrier, FormatB3Single, FormatW3C)
	require.NoError(t, err)
	assert.Equal(t, b3.TraceID, got.TraceID)

	got, err = Extract(carrier)
	require.NoError(t, err)
	assert.Equal(t, w3c.TraceID, got.TraceID)

	t.Run("格式错误的头不会阻止后续格式", func(t *testing.T) {
		bad := propagation.MapCarrier{HeaderTraceparent: "garbage", HeaderB3: b3.B3()}
		got, err := Extract(bad)
		require.NoError(t, err)
		assert.Equal(t, b3.TraceID, got.TraceID)
	})

	t.Run("只有格式错误的头", func(t *testing.T) {
		_, err := Extract(propagation.MapCarrier{HeaderTraceparent: "garbage"})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("没有任何头", func(t *testing.T) {
		_, err := Extract(propagation.MapCarrier{})
		assert.ErrorIs(t, err, ErrNoTraceContext)
	})
}

func TestChild(t *testing.T) {
	root := NewRoot(true)
	child := root.Child()

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
	assert.Equal(t, root.SpanID, child.ParentSpanID)
	assert.True(t, child.IsSampled())
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	root := NewRoot(true)
	ctx := NewContext(context.Background(), root)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, root, got)

	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(ctx, "req-1")))
}

func TestPropagator(t *testing.T) {
	p := NewPropagator(FormatB3Single)
	carrier := propagation.MapCarrier{HeaderB3: "4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1"}

	ctx := p.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.True(t, sc.IsSampled())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	out := propagation.MapCarrier{}
	p.Inject(ctx, out)
	assert.Equal(t, carrier.Get(HeaderB3), out.Get(HeaderB3))
	assert.Equal(t, []string{HeaderB3}, p.Fields())
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"w3c": FormatW3C, "B3": FormatB3Single, "b3multi": FormatB3Multi} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("jaeger")
	assert.Error(t, err)
}
