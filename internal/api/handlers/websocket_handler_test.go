package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/enhance"
)

type scriptedConn struct {
	wrote     []interface{}
	reply     string
	readErr   error
	deadlines []time.Time
}

func (c *scriptedConn) WriteJSON(v interface{}) error {
	c.wrote = append(c.wrote, v)
	return nil
}

func (c *scriptedConn) ReadJSON(v interface{}) error {
	if c.readErr != nil {
		return c.readErr
	}
	return json.Unmarshal([]byte(c.reply), v)
}

func (c *scriptedConn) SetReadDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func clarification() enhance.Clarification {
	return enhance.Clarification{
		Question: "Which Jordan?",
		Options:  []string{"Michael Jordan", "Jordan (country)"},
		Original: "Jordan won six championships",
	}
}

func TestClarifyReturnsClientChoice(t *testing.T) {
	conn := &scriptedConn{reply: `{"type": "clarification", "choice": "Michael Jordan"}`}
	clarifier := &wsClarifier{conn: conn, window: time.Second}

	choice, err := clarifier.Clarify(context.Background(), clarification())
	require.NoError(t, err)
	assert.Equal(t, "Michael Jordan", choice)
	assert.False(t, clarifier.poisoned())

	require.Len(t, conn.wrote, 1)
	frame, ok := conn.wrote[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "clarify", frame["type"])
}

func TestClarifyTimeoutKeepsOriginalAndPoisonsConnection(t *testing.T) {
	conn := &scriptedConn{readErr: errors.New("read tcp: i/o timeout")}
	clarifier := &wsClarifier{conn: conn, window: time.Second}

	choice, err := clarifier.Clarify(context.Background(), clarification())
	require.NoError(t, err)
	assert.Equal(t, "Jordan won six championships", choice)

	// A blown read deadline makes every later read on the socket fail, so
	// the handler has to close instead of looping for the next message.
	assert.True(t, clarifier.poisoned())

	// Deadline armed for the wait, then cleared.
	require.Len(t, conn.deadlines, 2)
	assert.True(t, conn.deadlines[1].IsZero())
}

func TestClarifyUnexpectedReplyKeepsOriginal(t *testing.T) {
	conn := &scriptedConn{reply: `{"type": "verify", "claim": "something else"}`}
	clarifier := &wsClarifier{conn: conn, window: time.Second}

	choice, err := clarifier.Clarify(context.Background(), clarification())
	require.NoError(t, err)
	assert.Equal(t, "Jordan won six championships", choice)
	assert.False(t, clarifier.poisoned())
}

func TestPoisonedIsNilSafe(t *testing.T) {
	var clarifier *wsClarifier
	assert.False(t, clarifier.poisoned())
}
