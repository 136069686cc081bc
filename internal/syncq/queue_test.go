package syncq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("connection refused")

type scriptedSender struct {
	sent    []string
	results map[string]error
}

func (s *scriptedSender) Send(_ context.Context, cmd Command) error {
	s.sent = append(s.sent, cmd.IdempotencyKey)
	return s.results[cmd.IdempotencyKey]
}

func (s *scriptedSender) Offline(err error) bool { return errors.Is(err, errUnreachable) }

func TestPushAndLoad(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	cmds, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, cmds)

	require.NoError(t, q.Push(NewCommand("POST", "/v1/inventory/restock", map[string]any{"item_id": 1, "quantity": 5}, "")))
	require.NoError(t, q.Push(NewCommand("PATCH", "/v1/orders/3/complete", nil, "fixed")))

	cmds, err = q.Load()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.NotEmpty(t, cmds[0].IdempotencyKey)
	assert.Equal(t, "fixed", cmds[1].IdempotencyKey)
	assert.EqualValues(t, 5, cmds[0].Body["quantity"])
}

func TestReplayKeepsOrderAndStopsWhenOffline(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Push(NewCommand("POST", "/v1/orders", nil, key)))
	}

	s := &scriptedSender{results: map[string]error{
		"b": errors.New("api status 400: Not enough stock"),
		"c": errUnreachable,
	}}
	res, err := q.Replay(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.sent)
	require.Len(t, res.Applied, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "b", res.Rejected[0].Command.IdempotencyKey)
	assert.Equal(t, 2, res.Pending)

	left, err := q.Load()
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "c", left[0].IdempotencyKey)

	s.results = nil
	res, err = q.Replay(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)
	assert.Zero(t, res.Pending)
}
