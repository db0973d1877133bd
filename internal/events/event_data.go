package events

import (
	"encoding/json"
)

// EventData is the interface that all typed event payloads implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// HolidaysLoadedData contains data for HolidaysLoaded events
type HolidaysLoadedData struct {
	Count      int    `json:"count"`
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
}

// EventType returns the event type for HolidaysLoadedData
func (d *HolidaysLoadedData) EventType() EventType {
	return HolidaysLoaded
}

// ContinuousTableLoadedData contains data for ContinuousTableLoaded events
type ContinuousTableLoadedData struct {
	Series int `json:"series"`
	Rolls  int `json:"rolls"`
}

// EventType returns the event type for ContinuousTableLoadedData
func (d *ContinuousTableLoadedData) EventType() EventType {
	return ContinuousTableLoaded
}

// ViewBuiltData contains data for ViewBuilt events
type ViewBuiltData struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Series      int    `json:"series"`
	TradingDays int    `json:"trading_days"`
}

// EventType returns the event type for ViewBuiltData
func (d *ViewBuiltData) EventType() EventType {
	return ViewBuilt
}

// SourceFetchedData contains data for SourceFetched events
// Cached means the payload was served from the local cache without a network
// round trip; Stale means a cached copy past its TTL was used because the
// network fetch failed.
type SourceFetchedData struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Bytes  int    `json:"bytes"`
	Cached bool   `json:"cached"`
	Stale  bool   `json:"stale,omitempty"`
}

// EventType returns the event type for SourceFetchedData
func (d *SourceFetchedData) EventType() EventType {
	return SourceFetched
}

// CacheCleanupCompletedData contains data for CacheCleanupCompleted events
type CacheCleanupCompletedData struct {
	Deleted int64 `json:"deleted"`
}

// EventType returns the event type for CacheCleanupCompletedData
func (d *CacheCleanupCompletedData) EventType() EventType {
	return CacheCleanupCompleted
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Backup    string `json:"backup"`
	SizeBytes int64  `json:"size_bytes"`
	Databases int    `json:"databases"`
	Uploaded  bool   `json:"uploaded"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// UnmarshalJSON decodes the payload into the concrete type named by Type.
// Unknown types fall back to a raw map.
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case HolidaysLoaded:
		eventData = &HolidaysLoadedData{}
	case ContinuousTableLoaded:
		eventData = &ContinuousTableLoadedData{}
	case ViewBuilt:
		eventData = &ViewBuiltData{}
	case SourceFetched:
		eventData = &SourceFetchedData{}
	case CacheCleanupCompleted:
		eventData = &CacheCleanupCompletedData{}
	case BackupCompleted:
		eventData = &BackupCompletedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		var rawData map[string]interface{}
		if err := json.Unmarshal(aux.Data, &rawData); err != nil {
			return err
		}
		eventData = &GenericEventData{Type: aux.Type, Data: rawData}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
