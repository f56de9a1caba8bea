// Package transport adapts the Telegram Bot API to the session engine:
// long-poll fetching of inbound events by explicit offset, and outbound
// messages with optional reply keyboards.
package transport

import "time"

// Event is a single inbound update. IDs increase monotonically; the message
// payload is absent for update kinds the bot does not handle.
type Event struct {
	ID      int64
	Message *Message
}

// Message is the chat message payload of an event.
type Message struct {
	ChatID   int64
	Username string
	Text     string
	Time     time.Time
}

// Outbound describes one message to deliver.
type Outbound struct {
	ChatID   int64
	Text     string
	Keyboard [][]string
	HTML     bool
}
