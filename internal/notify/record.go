// Package notify delivers booking notifications to clients and providers at
// most once per (booking, channel, recipient) for each booking event.
package notify

import (
	"errors"
	"time"
)

// Channel is the delivery medium.
type Channel string

const (
	ChannelMessage Channel = "message"
	ChannelEmail   Channel = "email"
)

// Role identifies who receives a notification.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

// Status of a notification record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var (
	// ErrNotFound is returned when a record does not exist or is no longer pending.
	ErrNotFound = errors.New("notify: record not found")
	// ErrUnknownEvent is returned for event kinds the dispatcher has no templates for.
	ErrUnknownEvent = errors.New("notify: unknown event kind")
)

// Record tracks one delivery attempt.
type Record struct {
	ID               string     `json:"id"`
	BookingID        string     `json:"booking_id"`
	Topic            string     `json:"topic"`
	Channel          Channel    `json:"channel"`
	RecipientRole    Role       `json:"recipient_role"`
	RecipientAddress string     `json:"recipient_address"`
	Status           Status     `json:"status"`
	ErrorDetail      string     `json:"error_detail,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}

// Key is the deduplication key. While a record with this key is pending or
// sent, no other record with the same key can be claimed.
type Key struct {
	BookingID string
	Topic     string
	Channel   Channel
	Role      Role
	Address   string
}

// Key returns the record's dedup key.
func (r Record) Key() Key {
	return Key{
		BookingID: r.BookingID,
		Topic:     r.Topic,
		Channel:   r.Channel,
		Role:      r.RecipientRole,
		Address:   r.RecipientAddress,
	}
}

// blocksClaim reports whether the record prevents a new claim for its key.
func (r Record) blocksClaim() bool {
	return r.Status == StatusPending || r.Status == StatusSent
}

// Contact is the reachable side of a client or provider. Empty fields mean the
// channel is not configured for that person.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// Recipient is one (role, channel, address) pair to notify.
type Recipient struct {
	Role    Role
	Channel Channel
	Address string
	Name    string
}

// Recipients expands the client and provider contacts into recipient pairs,
// client first, message before email, keeping only channels in enabled.
func Recipients(client, provider Contact, enabled map[Channel]bool) []Recipient {
	var out []Recipient
	add := func(role Role, c Contact) {
		if c.Phone != "" && enabled[ChannelMessage] {
			out = append(out, Recipient{Role: role, Channel: ChannelMessage, Address: c.Phone, Name: c.Name})
		}
		if c.Email != "" && enabled[ChannelEmail] {
			out = append(out, Recipient{Role: role, Channel: ChannelEmail, Address: c.Email, Name: c.Name})
		}
	}
	add(RoleClient, client)
	add(RoleProvider, provider)
	return out
}
