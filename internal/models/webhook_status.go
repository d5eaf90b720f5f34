package models

import "time"

// WebhookEvent is one entry of the recent real-time events feed.
type WebhookEvent struct {
	Topic      string    `json:"topic"`
	ReceivedAt time.Time `json:"received_at"`
}

// WebhookStatus reports whether the store's real-time push integration is
// registered and delivering. A nil *WebhookStatus in a snapshot means the
// status endpoint could not be read this cycle; that is tolerated, the rest
// of the cycle proceeds.
type WebhookStatus struct {
	Active       bool           `json:"webhooks_active"`
	LastEventAt  *time.Time     `json:"last_event_at,omitempty"`
	EventCount   int            `json:"event_count"`
	RecentEvents []WebhookEvent `json:"recent_events,omitempty"`
}
