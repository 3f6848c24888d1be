package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler(t *testing.T) {
	assert.NotNil(t, NewInterruptHandler(nil, "").writer)

	var buf bytes.Buffer
	h := NewInterruptHandler(&buf, "hint")
	assert.Equal(t, &buf, h.writer)
	assert.False(t, h.WasInterrupted())
}

func TestInterruptMessage(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		expected    []string
		notExpected []string
	}{
		{
			name:     "with hint",
			hint:     "Lines already processed are saved.",
			expected: []string{"Interrupted!", "Lines already processed are saved."},
		},
		{
			name:        "without hint",
			expected:    []string{"Interrupted!"},
			notExpected: []string{InfoIcon},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &syncBuffer{}
			h := NewInterruptHandler(output, tt.hint)

			h.interrupt()
			h.interrupt()

			out := output.String()
			assert.True(t, h.WasInterrupted())
			assert.Equal(t, 1, strings.Count(out, "Interrupted!"))
			for _, s := range tt.expected {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notExpected {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestHandleInterrupts_ParentCancel(t *testing.T) {
	output := &syncBuffer{}
	h := NewInterruptHandler(output, "")

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := h.HandleInterrupts(parent)
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be canceled initially")
	default:
	}

	cancelParent()
	<-ctx.Done()

	assert.False(t, h.WasInterrupted())
	assert.Empty(t, output.String())
}
