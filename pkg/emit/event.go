package emit

import (
	"encoding/json"
	"time"
)

// Record is the body of an event.
type Record map[string]any

// Event is one timestamped record.
type Event struct {
	Time   time.Time
	Record Record
}

// EventStream is a batch of events sharing a tag.
type EventStream []Event

// Len returns the number of events.
func (es EventStream) Len() int { return len(es) }

// Dup returns a deep copy, so an output may modify its events without
// affecting the next output in a copy chain.
func (es EventStream) Dup() EventStream {
	if es == nil {
		return nil
	}
	dup := make(EventStream, len(es))
	for i, ev := range es {
		dup[i] = Event{Time: ev.Time, Record: ev.Record.Dup()}
	}
	return dup
}

// Dup returns a deep copy of r.
func (r Record) Dup() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = dupValue(v)
	}
	return out
}

func dupValue(v any) any {
	switch v := v.(type) {
	case Record:
		return v.Dup()
	case map[string]any:
		return map[string]any(Record(v).Dup())
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = dupValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), v...)
	default:
		return v
	}
}

// wireEvent is the JSON shape outputs send.
type wireEvent struct {
	Tag    string    `json:"tag"`
	Time   time.Time `json:"time"`
	Record Record    `json:"record"`
}

// MarshalEvent encodes ev as {"tag": ..., "time": ..., "record": {...}}.
func MarshalEvent(tag string, ev Event) ([]byte, error) {
	return json.Marshal(wireEvent{Tag: tag, Time: ev.Time.UTC(), Record: ev.Record})
}
