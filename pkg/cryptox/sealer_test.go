package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("correct horse")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"token":"abc"}`))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "abc")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, string(plain))
}

func TestSealerAcrossInstances(t *testing.T) {
	t.Parallel()

	a, err := NewSealer("correct horse")
	require.NoError(t, err)
	b, err := NewSealer("correct horse")
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("hello"))
	require.NoError(t, err)

	plain, err := b.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "hello", string(plain))

	wrong, err := NewSealer("battery staple")
	require.NoError(t, err)
	_, err = wrong.Open(sealed)
	require.Error(t, err)
}

func TestSealerRejectsGarbage(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("pw")
	require.NoError(t, err)

	_, err = s.Open([]byte{1, 2})
	require.ErrorIs(t, err, ErrSealedTooShort)

	_, err = s.Open(append([]byte{9}, make([]byte, 40)...))
	require.ErrorIs(t, err, ErrSealVersion)

	_, err = NewSealer("")
	require.ErrorIs(t, err, ErrEmptyPassphrase)
}
