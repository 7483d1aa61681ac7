package output

import (
	"encoding/json"
	"io"

	"github.com/handleui/buildlens/events"
	"github.com/vmihailenco/msgpack/v5"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteMsgpack writes v as MessagePack, keyed by the JSON field names.
func WriteMsgpack(w io.Writer, v any) error {
	return newMsgpackEncoder(w).Encode(v)
}

func newMsgpackEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc
}

// Stream writes events one at a time as they are classified.
type Stream interface {
	Event(e events.Event) error
}

// NewStream returns a stream for f. JSON formats write one event per line;
// msgpack writes consecutive values.
func NewStream(w io.Writer, f Format, opts TextOptions) Stream {
	switch f {
	case FormatJSON:
		return jsonStream{json.NewEncoder(w)}
	case FormatCompact:
		return compactStream{json.NewEncoder(w)}
	case FormatMsgpack:
		return msgpackStream{newMsgpackEncoder(w)}
	}
	return NewText(w, opts)
}

type jsonStream struct{ enc *json.Encoder }

func (s jsonStream) Event(e events.Event) error { return s.enc.Encode(e) }

type compactStream struct{ enc *json.Encoder }

func (s compactStream) Event(e events.Event) error {
	return s.enc.Encode(events.Compact([]events.Event{e}).Events[0])
}

type msgpackStream struct{ enc *msgpack.Encoder }

func (s msgpackStream) Event(e events.Event) error { return s.enc.Encode(e) }
