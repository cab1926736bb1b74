package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/polyglot-chat/pkg/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data string
		want protocol.Message
	}{
		{
			name: "info frame becomes system message",
			data: `{"info": "X joined"}`,
			want: protocol.Message{Kind: protocol.KindSystem, Content: "X joined"},
		},
		{
			name: "error frame becomes system message",
			data: `{"error": "Invalid initialization data"}`,
			want: protocol.Message{Kind: protocol.KindSystem, Content: "Invalid initialization data"},
		},
		{
			name: "info wins over every other marker",
			data: `{"info": "notice", "file_id": "f1", "audio_base64": "AAAA", "username": "bob"}`,
			want: protocol.Message{Kind: protocol.KindSystem, Content: "notice"},
		},
		{
			name: "translated text message",
			data: `{"username":"bob","content":"Hello","detected_language":"es","original_content":"Hola","original_language":"es"}`,
			want: protocol.Message{
				Kind:             protocol.KindText,
				Username:         "bob",
				Content:          "Hello",
				DetectedLanguage: "es",
				OriginalContent:  "Hola",
				OriginalLanguage: "es",
			},
		},
		{
			name: "untranslated original is dropped",
			data: `{"username":"bob","content":"Hello","detected_language":"en","original_content":"Hello","original_language":"en"}`,
			want: protocol.Message{
				Kind:             protocol.KindText,
				Username:         "bob",
				Content:          "Hello",
				DetectedLanguage: "en",
			},
		},
		{
			name: "file message accepts file_name alias",
			data: `{"type":"file","username":"carol","room":"lobby","file_id":"abc.pdf","file_name":"report.pdf","file_url":"/static/uploads/abc.pdf"}`,
			want: protocol.Message{
				Kind:     protocol.KindFile,
				Room:     "lobby",
				Username: "carol",
				FileID:   "abc.pdf",
				Filename: "report.pdf",
				FileURL:  "/static/uploads/abc.pdf",
			},
		},
		{
			name: "file identifier wins over audio",
			data: `{"file_id":"f1","filename":"a.txt","audio_base64":"AAAA"}`,
			want: protocol.Message{Kind: protocol.KindFile, FileID: "f1", Filename: "a.txt"},
		},
		{
			name: "voice message",
			data: `{"username":"dave","content":"good morning","audio_base64":"aGk=","detected_language":"hi"}`,
			want: protocol.Message{
				Kind:             protocol.KindVoice,
				Username:         "dave",
				Content:          "good morning",
				AudioBase64:      "aGk=",
				DetectedLanguage: "hi",
			},
		},
		{
			name: "null audio falls back to text",
			data: `{"username":"dave","content":"good morning","audio_base64":null}`,
			want: protocol.Message{Kind: protocol.KindText, Username: "dave", Content: "good morning"},
		},
		{
			name: "unrecognized object is text with best-effort fields",
			data: `{"content": 42}`,
			want: protocol.Message{Kind: protocol.KindText, Content: "42"},
		},
		{
			name: "empty object is text",
			data: `{}`,
			want: protocol.Message{Kind: protocol.KindText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.Classify([]byte(tt.data))
			require.NoError(t, err)
			got.Extra = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Timestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		want time.Time
	}{
		{name: "rfc3339 with zone", ts: "2025-03-01T10:20:30Z", want: time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)},
		{name: "naive with fraction", ts: "2025-03-01T10:20:30.250000", want: time.Date(2025, 3, 1, 10, 20, 30, 250000000, time.UTC)},
		{name: "space separated", ts: "2025-03-01 10:20:30", want: time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)},
		{name: "garbage is absent", ts: "yesterday", want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(map[string]string{"username": "u", "content": "c", "timestamp": tt.ts})
			require.NoError(t, err)

			got, err := protocol.Classify(data)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Timestamp), "got %v want %v", got.Timestamp, tt.want)
		})
	}
}

func TestClassify_KeepsUnknownFields(t *testing.T) {
	got, err := protocol.Classify([]byte(`{"username":"bob","content":"hi","reaction":"wave","score":3}`))
	require.NoError(t, err)
	require.NotNil(t, got.Extra)

	fields := got.Extra.AsMap()
	assert.Equal(t, "wave", fields["reaction"])
	assert.Equal(t, float64(3), fields["score"])
	assert.NotContains(t, fields, "username")
}

func TestMessage_Leftover(t *testing.T) {
	got, err := protocol.Classify([]byte(`{"sender":"bob","message":"hi there","score":3,"tags":["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindText, got.Kind)
	assert.Empty(t, got.Content)
	assert.Equal(t, `message=hi there score=3 sender=bob tags=["a"]`, got.Leftover())

	plain, err := protocol.Classify([]byte(`{"username":"bob","content":"hi"}`))
	require.NoError(t, err)
	assert.Empty(t, plain.Leftover())
}

func TestClassify_Malformed(t *testing.T) {
	for _, data := range []string{``, `not json`, `[1,2]`, `"text"`, `null`} {
		_, err := protocol.Classify([]byte(data))
		require.Error(t, err, "input %q", data)

		var decodeErr *protocol.DecodeError
		assert.True(t, errors.As(err, &decodeErr), "input %q", data)
	}
}

func TestMessage_Audio(t *testing.T) {
	msg := protocol.Message{Kind: protocol.KindVoice, AudioBase64: "aGVsbG8="}
	audio, err := msg.Audio()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), audio)

	_, err = protocol.Message{Kind: protocol.KindText}.Audio()
	assert.Error(t, err)
}

func TestMessage_Equal(t *testing.T) {
	a, err := protocol.Classify([]byte(`{"username":"bob","content":"hi","mood":"ok"}`))
	require.NoError(t, err)
	b, err := protocol.Classify([]byte(`{"mood":"ok","content":"hi","username":"bob"}`))
	require.NoError(t, err)
	c, err := protocol.Classify([]byte(`{"username":"bob","content":"hi","mood":"meh"}`))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "text", protocol.KindText.String())
	assert.Equal(t, "system", protocol.KindSystem.String())
	assert.Equal(t, "voice", protocol.KindVoice.String())
	assert.Equal(t, "file", protocol.KindFile.String())
	assert.Equal(t, "unknown", protocol.Kind(99).String())
}

func TestEncodeFrames(t *testing.T) {
	tests := []struct {
		name   string
		encode func() ([]byte, error)
		want   string
	}{
		{name: "handshake", encode: func() ([]byte, error) { return protocol.EncodeHandshake("en") }, want: `{"preferred_language":"en"}`},
		{name: "text", encode: func() ([]byte, error) { return protocol.EncodeText("hello") }, want: `{"content":"hello"}`},
		{name: "language update", encode: func() ([]byte, error) { return protocol.EncodeLanguageUpdate("fr") }, want: `{"type":"update_language","preferred_language":"fr"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
