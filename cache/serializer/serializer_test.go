package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/xerrors"
)

type decision struct {
	Allowed bool   `json:"allowed" msgpack:"allowed"`
	Reason  string `json:"reason" msgpack:"reason"`
}

func TestSerializers(t *testing.T) {
	for _, name := range []string{"msgpack", "json"} {
		t.Run(name, func(t *testing.T) {
			s, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())

			b, err := s.Marshal(decision{Allowed: true, Reason: "owner"})
			require.NoError(t, err)
			var got decision
			require.NoError(t, s.Unmarshal(b, &got))
			assert.Equal(t, decision{Allowed: true, Reason: "owner"}, got)
		})
	}

	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", s.Name())

	_, err = New("gob")
	assert.ErrorIs(t, err, ErrUnsupportedSerializer)
	assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))
}
