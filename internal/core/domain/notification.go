package domain

import "time"

// Channel selects the delivery transport of a Notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is an outbound email or SMS.
//
// For email, Template names an HTML template rendered with Data; when empty
// Text is sent as-is.
type Notification struct {
	Channel  Channel        `json:"channel"`
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Delivery describes an accepted notification.
type Delivery struct {
	Channel  Channel   `json:"channel"`
	To       string    `json:"to"`
	Accepted time.Time `json:"accepted"`
	Ref      string    `json:"ref,omitempty"`
}
