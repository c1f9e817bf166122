package gcsuploader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
)

const dumpContentType = "application/x-ndjson"

// maxDumpLine bounds one JSONL record.
const maxDumpLine = 1 << 20

// EventRecord is one line of an event dump.
type EventRecord struct {
	EventID    string    `json:"event_id,omitempty"`
	OwnerID    string    `json:"owner_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Package    string    `json:"package,omitempty"`
	RawText    string    `json:"raw_text"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status,omitempty"`
}

// NewEventRecord converts a stored event to its dump record.
func NewEventRecord(e *domain.InboundEvent) EventRecord {
	return EventRecord{
		EventID:    e.EventID,
		OwnerID:    e.OwnerID,
		DeviceID:   e.DeviceID,
		SourceType: string(e.SourceType),
		Sender:     e.Sender,
		Package:    e.Package,
		RawText:    e.RawText,
		Timestamp:  e.ReceivedAt,
		Status:     string(e.Status),
	}
}

// DecodeEventDump parses a JSONL dump. Blank lines are skipped; a malformed
// line fails the whole dump with its line number.
func DecodeEventDump(data []byte) ([]EventRecord, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxDumpLine)

	var records []EventRecord
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("DecodeEventDump: line %d: %w", line, err)
		}
		if rec.RawText == "" {
			return nil, fmt.Errorf("DecodeEventDump: line %d: raw_text is empty", line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("DecodeEventDump: %w", err)
	}
	return records, nil
}

// EncodeEventDump writes events as JSONL.
func EncodeEventDump(events []*domain.InboundEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(NewEventRecord(e)); err != nil {
			return nil, fmt.Errorf("EncodeEventDump: event %s: %w", e.EventID, err)
		}
	}
	return buf.Bytes(), nil
}
