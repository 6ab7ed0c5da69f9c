package item

import (
	"encoding/json"
	"errors"
)

// ErrInvalidBody is returned when an item carries neither or both of a message and a trace
var ErrInvalidBody = errors.New("item body must be exactly one of message or trace")

// Item is one reportable event. Build it with NewMessage or NewTrace; the
// transport encodes it once at enqueue time, so later changes to a caller's
// copy never reach the wire.
type Item struct {
	Level    Level
	Message  *Message // set for log-style items
	Trace    *Trace   // set for exceptions and panics
	Language string   // optional, omitted when empty
	Context  string   // optional, omitted when empty
}

// Message is a text body with arbitrary extra keys flattened beside it on the wire
type Message struct {
	Body  string
	Extra map[string]any
}

// Trace is a stack trace plus the exception that produced it
type Trace struct {
	Frames    []Frame   `json:"frames"`
	Exception Exception `json:"exception"`
}

// Frame is one stack frame. Lineno and Colno are encoded as null when unknown.
type Frame struct {
	Filename string `json:"filename"`
	Lineno   *int   `json:"lineno"`
	Colno    *int   `json:"colno"`
	Method   string `json:"method,omitempty"`
}

type Exception struct {
	Class   string `json:"class"`
	Message string `json:"message,omitempty"`
}

// NewMessage builds a message item
func NewMessage(level Level, text string, extra map[string]any) Item {
	return Item{
		Level:   level,
		Message: &Message{Body: text, Extra: extra},
	}
}

// NewTrace builds a trace item for an exception class and its frames
func NewTrace(level Level, class string, frames []Frame) Item {
	return Item{
		Level: level,
		Trace: &Trace{Frames: frames, Exception: Exception{Class: class}},
	}
}

// WithLanguage returns a copy of the item tagged with language
func (i Item) WithLanguage(language string) Item {
	i.Language = language
	return i
}

// WithContext returns a copy of the item tagged with context
func (i Item) WithContext(context string) Item {
	i.Context = context
	return i
}

// Validate checks that the item has exactly one body
func (i Item) Validate() error {
	if (i.Message == nil) == (i.Trace == nil) {
		return ErrInvalidBody
	}
	return nil
}

type wireItem struct {
	Data wireData `json:"data"`
}

type wireData struct {
	Body     wireBody `json:"body"`
	Level    Level    `json:"level"`
	Language string   `json:"language,omitempty"`
	Context  string   `json:"context,omitempty"`
}

type wireBody struct {
	Message map[string]any `json:"message,omitempty"`
	Trace   *Trace         `json:"trace,omitempty"`
}

// MarshalJSON encodes the item in the collector's wire shape:
//
//	{"data":{"body":{"message":{"body":...}},"level":"info"}}
func (i Item) MarshalJSON() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	var body wireBody
	if i.Message != nil {
		msg := make(map[string]any, len(i.Message.Extra)+1)
		for k, v := range i.Message.Extra {
			msg[k] = v
		}
		// extras never shadow the message text
		msg["body"] = i.Message.Body
		body.Message = msg
	} else {
		tr := *i.Trace
		if tr.Frames == nil {
			tr.Frames = []Frame{}
		}
		body.Trace = &tr
	}

	return json.Marshal(wireItem{Data: wireData{
		Body:     body,
		Level:    i.Level,
		Language: i.Language,
		Context:  i.Context,
	}})
}
