// Package protocol defines the timeline message model and the JSON frames
// exchanged with the chat backend.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind represents the variant of a timeline message
type Kind int

const (
	KindText Kind = iota
	KindSystem
	KindVoice
	KindFile
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSystem:
		return "system"
	case KindVoice:
		return "voice"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Message is one displayable timeline entry.
//
// Only the fields relevant to Kind are populated: system messages carry
// Content alone, file messages carry no Content, voice messages carry the
// translated transcript in Content and the synthesized audio in AudioBase64.
type Message struct {
	Kind             Kind
	Room             string
	Username         string
	Content          string
	DetectedLanguage string
	OriginalContent  string
	OriginalLanguage string
	AudioBase64      string
	FileID           string
	Filename         string
	FileURL          string
	// Timestamp is zero when the frame carried none or carried one that
	// could not be parsed.
	Timestamp time.Time
	// Extra keeps the fields of the frame that were not understood.
	Extra *structpb.Struct
}

// HasOriginal reports whether translation altered the displayed content.
func (m Message) HasOriginal() bool {
	return m.OriginalContent != "" && m.OriginalContent != m.Content
}

// Audio decodes the voice payload.
func (m Message) Audio() ([]byte, error) {
	if m.AudioBase64 == "" {
		return nil, errors.New("message carries no audio")
	}
	data, err := base64.StdEncoding.DecodeString(m.AudioBase64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode audio")
	}
	return data, nil
}

// Leftover renders the fields kept in Extra as space separated key=value
// pairs sorted by key. It returns "" when the frame had no such fields.
func (m Message) Leftover() string {
	if m.Extra == nil || len(m.Extra.GetFields()) == 0 {
		return ""
	}
	fields := m.Extra.GetFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+valueText(fields[k]))
	}
	return strings.Join(parts, " ")
}

func valueText(v *structpb.Value) string {
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return s.StringValue
	}
	data, err := json.Marshal(v.AsInterface())
	if err != nil {
		return "?"
	}
	return string(data)
}

// Equal reports whether two messages carry the same content.
// Timeline entries are never deduplicated; this exists for callers
// that compare entries, such as tests and renderers.
func (m Message) Equal(o Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return false
	}
	a, b := m, o
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	a.Extra, b.Extra = nil, nil
	if a != b {
		return false
	}
	return proto.Equal(m.Extra, o.Extra)
}

// Classify decodes a raw inbound frame into exactly one Message variant.
// Only frames that are not JSON objects fail; every object maps to a variant.
func Classify(data []byte) (Message, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, &DecodeError{Data: data, Err: err}
	}
	if fields == nil {
		return Message{}, &DecodeError{Data: data, Err: errors.New("frame is not a JSON object")}
	}
	return FromFields(fields), nil
}

// FromFields classifies an already decoded frame using the precedence
// informational marker, file identifier, audio payload, then text.
func FromFields(fields map[string]any) Message {
	r := &fieldReader{fields: fields, used: make(map[string]bool, len(fields))}
	var m Message

	switch {
	case r.present("info"):
		m.Kind = KindSystem
		m.Content = r.str("info")
	case r.present("error"):
		m.Kind = KindSystem
		m.Content = r.str("error")
	case r.present("file_id"):
		m.Kind = KindFile
		m.FileID = r.str("file_id")
		m.Filename = r.str("filename")
		if m.Filename == "" {
			m.Filename = r.str("file_name")
		}
		m.FileURL = r.str("file_url")
		// "type": "file" is implied by the variant
		r.str("type")
	case r.present("audio_base64"):
		m.Kind = KindVoice
		m.AudioBase64 = r.str("audio_base64")
	default:
		m.Kind = KindText
	}

	if m.Kind != KindSystem {
		m.Room = r.str("room")
		m.Username = r.str("username")
		m.Timestamp = parseTimestamp(r.str("timestamp"))
		if m.Kind != KindFile {
			m.Content = r.str("content")
			m.DetectedLanguage = r.str("detected_language")
			m.OriginalContent = r.str("original_content")
			m.OriginalLanguage = r.str("original_language")
			if !m.HasOriginal() {
				m.OriginalContent = ""
				m.OriginalLanguage = ""
			}
		}
	}

	m.Extra = r.rest()
	return m
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type fieldReader struct {
	fields map[string]any
	used   map[string]bool
}

// present mirrors a truthiness check: the key exists and is neither null,
// false nor the empty string.
func (r *fieldReader) present(key string) bool {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case bool:
		return t
	}
	return true
}

func (r *fieldReader) str(key string) string {
	v, ok := r.fields[key]
	if !ok {
		return ""
	}
	r.used[key] = true
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func (r *fieldReader) rest() *structpb.Struct {
	extra := make(map[string]any)
	for k, v := range r.fields {
		if !r.used[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	s, err := structpb.NewStruct(extra)
	if err != nil {
		return nil
	}
	return s
}
