package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestFormatterClockTime verifies that stored timestamps render as
// "h:mm am/pm" strings shifted into the display zone.
func TestFormatterClockTime(t *testing.T) {
	f := NewMessageFormatter(time.FixedZone("display", 6*3600))

	// 08:30 UTC is 14:30 at +06:00
	ts := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)
	msg := f.Stored(Message{ID: 7, Username: "alice", Body: "hello", Timestamp: ts})

	assert.Equal(t, "2:30 pm", msg.Time)
	assert.Equal(t, 7, msg.ID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, ts, msg.Timestamp)
}

// TestFormatterMorningAndMidnight verifies am rendering and the 12-hour
// wraparound at midnight.
func TestFormatterMorningAndMidnight(t *testing.T) {
	f := NewMessageFormatter(time.UTC)

	morning := f.Stored(Message{Timestamp: time.Date(2024, 3, 15, 9, 5, 0, 0, time.UTC)})
	assert.Equal(t, "9:05 am", morning.Time)

	midnight := f.Stored(Message{Timestamp: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, "12:00 am", midnight.Time)
}

// TestFormatterLive verifies that live messages carry the author, body,
// and a current timestamp.
func TestFormatterLive(t *testing.T) {
	f := NewMessageFormatter(time.UTC)

	before := time.Now()
	msg := f.Live("alice", "hello")

	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hello", msg.Text)
	assert.NotEmpty(t, msg.Time)
	assert.False(t, msg.Timestamp.Before(before))
	assert.Zero(t, msg.ID)
}

// TestFormatterStoredAllKeepsOrder verifies that batch formatting
// preserves input order, since history is already chronological.
func TestFormatterStoredAllKeepsOrder(t *testing.T) {
	f := NewMessageFormatter(time.UTC)

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: 1, Body: "first", Timestamp: base},
		{ID: 2, Body: "second", Timestamp: base.Add(time.Minute)},
	}

	out := f.StoredAll(msgs)
	assert.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Text)
	assert.Equal(t, "second", out[1].Text)

	assert.Empty(t, f.StoredAll(nil))
}
