package attachment

import (
	"context"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// VoiceTranslation asks the backend to transcribe a recording in
// SourceLang and synthesize it in TargetLang.
type VoiceTranslation struct {
	SourceLang string
	TargetLang string
	Filename   string
	Audio      io.Reader
}

// TranslatedVoice is the result of a voice translation.
type TranslatedVoice struct {
	Text  string
	Audio []byte
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
	AudioBase64    string `json:"audio_base64"`
}

// TranslateVoice posts a recording to /voice-translate. The result is
// returned to the caller only; nothing is announced on the channel.
func (s *HTTPSubmitter) TranslateVoice(ctx context.Context, vt VoiceTranslation) (TranslatedVoice, error) {
	if vt.Filename == "" {
		vt.Filename = "recording.wav"
	}
	fail := func(err error) (TranslatedVoice, error) {
		return TranslatedVoice{}, &UploadError{Kind: KindVoice, Filename: vt.Filename, Err: err}
	}
	if vt.Audio == nil {
		return fail(errors.New("empty recording"))
	}
	if vt.SourceLang == "" {
		vt.SourceLang = "hi"
	}
	if vt.TargetLang == "" {
		vt.TargetLang = "en"
	}

	body, contentType, err := encodeMultipart("audio_file", vt.Filename, vt.Audio, map[string]string{
		"source_lang": vt.SourceLang,
		"target_lang": vt.TargetLang,
	})
	if err != nil {
		return fail(err)
	}

	var resp translateResponse
	if err := s.client.PostJSON(ctx, s.client.URL("voice-translate"), contentType, body, &resp); err != nil {
		return fail(err)
	}

	out := TranslatedVoice{Text: resp.TranslatedText}
	if resp.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			return TranslatedVoice{}, errors.Wrap(err, "failed to decode synthesized audio")
		}
		out.Audio = audio
	}
	return out, nil
}
