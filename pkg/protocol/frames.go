package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// FrameTypeUpdateLanguage tags the control frame that changes the
// preferred language of an open channel.
const FrameTypeUpdateLanguage = "update_language"

// Handshake is the first frame sent once a channel opens.
type Handshake struct {
	PreferredLanguage string `json:"preferred_language"`
}

// TextFrame carries a chat message typed by the user.
type TextFrame struct {
	Content string `json:"content"`
}

// LanguageUpdate asks the backend to translate toward a new language.
type LanguageUpdate struct {
	Type              string `json:"type"`
	PreferredLanguage string `json:"preferred_language"`
}

// EncodeHandshake encodes the handshake frame for lang
func EncodeHandshake(lang string) ([]byte, error) {
	return encode(Handshake{PreferredLanguage: lang})
}

// EncodeText encodes an outbound chat message
func EncodeText(content string) ([]byte, error) {
	return encode(TextFrame{Content: content})
}

// EncodeLanguageUpdate encodes the update_language control frame
func EncodeLanguageUpdate(lang string) ([]byte, error) {
	return encode(LanguageUpdate{Type: FrameTypeUpdateLanguage, PreferredLanguage: lang})
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	return data, nil
}
