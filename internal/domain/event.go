package domain

import "time"

// SourceType is the kind of channel the device captured the text from.
type SourceType string

const (
	SourceTypeSMS          SourceType = "SMS"
	SourceTypeNotification SourceType = "NOTIFICATION"
)

// EventStatus tracks an inbound event through the materializer.
type EventStatus string

const (
	EventStatusPending EventStatus = "PENDING"
	EventStatusParsed  EventStatus = "PARSED"
	EventStatusFailed  EventStatus = "FAILED"
)

// InboundEvent is the raw notification exactly as the device reported it.
// Events are never deleted; reparse rewrites status, error and link.
type InboundEvent struct {
	EventID  string
	OwnerID  string
	DeviceID string

	SourceType SourceType
	// Sender is the SMS sender id or the notification title.
	Sender string
	// Package is the Android package that posted a notification, if any.
	Package string
	RawText string

	// ReceivedAt is the device-reported timestamp.
	ReceivedAt time.Time
	InsertedAt time.Time

	Status        EventStatus
	ErrorMessage  string
	TransactionID string
}
