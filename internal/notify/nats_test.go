package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	err      error
	messages []message
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "", nil)

	id := int64(7)
	err := p.Publish(context.Background(), Event{
		Type:       EventFinalized,
		RunID:      "run-1",
		UserID:     "alice",
		ExpenseID:  &id,
		Amount:     25.5,
		Currency:   "EUR",
		Category:   "Food",
		Confidence: 1,
	})
	require.NoError(t, err)

	require.Len(t, conn.messages, 1)
	assert.Equal(t, "intake.expense.finalized", conn.messages[0].subject)

	var got Event
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &got))
	assert.Equal(t, "alice", got.UserID)
	require.NotNil(t, got.ExpenseID)
	assert.Equal(t, int64(7), *got.ExpenseID)
	assert.False(t, got.OccurredAt.IsZero())

	p.Close()
	assert.True(t, conn.closed)
}

func TestNATSPublisher_Errors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := newNATSPublisher(conn, "finance", nil)

	err := p.Publish(context.Background(), Event{Type: EventDeferred, OccurredAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finance.expense.deferred")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{Type: EventDeferred}), context.Canceled)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
