package main

import (
	"strings"
	"time"
)

// MessageFormatter renders timestamps in the configured display zone.
// Both the live-send path and the history-load path go through it so the
// two never drift apart.
type MessageFormatter struct {
	loc *time.Location
}

func NewMessageFormatter(loc *time.Location) *MessageFormatter {
	return &MessageFormatter{loc: loc}
}

// clockTime renders a timestamp as "h:mm am/pm" in the display zone.
func (f *MessageFormatter) clockTime(ts time.Time) string {
	return strings.ToLower(ts.In(f.loc).Format("3:04 PM"))
}

// Live formats a message produced right now by username.
func (f *MessageFormatter) Live(username, text string) FormattedMessage {
	now := time.Now()
	return FormattedMessage{
		Username:  username,
		Text:      text,
		Time:      f.clockTime(now),
		Timestamp: now,
	}
}

// Stored formats a message loaded from the database, keeping its id and
// the author's avatar.
func (f *MessageFormatter) Stored(m Message) FormattedMessage {
	return FormattedMessage{
		ID:        m.ID,
		Username:  m.Username,
		Text:      m.Body,
		Time:      f.clockTime(m.Timestamp),
		Timestamp: m.Timestamp,
		Avatar:    m.AvatarURL,
	}
}

// StoredAll formats a batch in input order.
func (f *MessageFormatter) StoredAll(msgs []Message) []FormattedMessage {
	out := make([]FormattedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, f.Stored(m))
	}
	return out
}
