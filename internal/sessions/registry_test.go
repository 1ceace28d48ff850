package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSender struct{ sent int }

func (s *stubSender) Send(ctx context.Context, payload []byte) error {
	s.sent++
	return nil
}

func TestBindAndLookup(t *testing.T) {
	r := NewRegistry()
	sender := &stubSender{}

	r.Bind("sess-1", sender)
	got, ok := r.Lookup("sess-1")
	require.True(t, ok)
	require.Same(t, sender, got.(*stubSender))
	require.Equal(t, 1, r.Len())
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("ghost")
	require.False(t, ok)
}

func TestUnbind(t *testing.T) {
	r := NewRegistry()
	r.Bind("sess-1", &stubSender{})
	r.Unbind("sess-1")

	_, ok := r.Lookup("sess-1")
	require.False(t, ok)
	require.Zero(t, r.Len())

	// Unbinding an unknown session is a no-op.
	r.Unbind("ghost")
}

func TestRebindReplacesSender(t *testing.T) {
	r := NewRegistry()
	first := &stubSender{}
	second := &stubSender{}

	r.Bind("sess-1", first)
	r.Bind("sess-1", second)

	got, ok := r.Lookup("sess-1")
	require.True(t, ok)
	require.Same(t, second, got.(*stubSender))
	require.Equal(t, 1, r.Len())
}
