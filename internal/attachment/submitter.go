// Package attachment uploads voice recordings and files out of band.
//
// A successful upload does not produce a timeline entry by itself: the
// backend announces the attachment on the live channel, and that echo is
// what the session appends. Upload failures are reported here as
// *UploadError and never touch the timeline.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"

	"github.com/omochice/polyglot-chat/internal/backend"
)

// Kind is the kind of attachment.
type Kind int

const (
	KindVoice Kind = iota
	KindFile
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindVoice:
		return "voice"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

const defaultVoiceFilename = "input.webm"

// Upload describes one attachment submission.
type Upload struct {
	Kind     Kind
	Room     string
	Username string
	// PreferredLanguage hints the transcription language of a voice upload.
	PreferredLanguage string
	Filename          string
	Body              io.Reader
}

// Receipt is what the backend returned for an accepted upload.
// File uploads fill the file fields; voice uploads only Status.
type Receipt struct {
	Status   string `json:"status"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

// Submitter sends attachments to the backend.
type Submitter interface {
	Submit(ctx context.Context, u Upload) (Receipt, error)
}

// UploadError reports an attachment that did not reach the backend.
type UploadError struct {
	Kind     Kind
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to send %s %q: %v", e.Kind, e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// HTTPSubmitter implements Submitter against the backend HTTP endpoints.
type HTTPSubmitter struct {
	client *backend.Client
}

// NewHTTPSubmitter creates an HTTPSubmitter.
func NewHTTPSubmitter(client *backend.Client) *HTTPSubmitter {
	return &HTTPSubmitter{client: client}
}

// Submit implements Submitter.
func (s *HTTPSubmitter) Submit(ctx context.Context, u Upload) (Receipt, error) {
	if u.Kind == KindVoice && u.Filename == "" {
		u.Filename = defaultVoiceFilename
	}
	fail := func(err error) (Receipt, error) {
		return Receipt{}, &UploadError{Kind: u.Kind, Filename: u.Filename, Err: err}
	}

	if u.Body == nil {
		return fail(errors.New("empty attachment"))
	}
	if u.Room == "" || u.Username == "" {
		return fail(errors.New("room and username are required"))
	}

	var (
		endpoint  string
		fileField string
		fields    = map[string]string{"room": u.Room, "username": u.Username}
	)
	switch u.Kind {
	case KindVoice:
		endpoint, fileField = "voice_message", "audio"
		lang := u.PreferredLanguage
		if lang == "" {
			lang = "en"
		}
		fields["preferred_language"] = lang
	case KindFile:
		if u.Filename == "" {
			return fail(errors.New("filename is required"))
		}
		endpoint, fileField = "upload_file", "file"
	default:
		return fail(errors.Errorf("unsupported attachment kind %d", u.Kind))
	}

	body, contentType, err := encodeMultipart(fileField, u.Filename, u.Body, fields)
	if err != nil {
		return fail(err)
	}

	var receipt Receipt
	if err := s.client.PostJSON(ctx, s.client.URL(endpoint), contentType, body, &receipt); err != nil {
		return fail(err)
	}
	return receipt, nil
}

// Download writes the file stored under fileID to w and returns its
// original filename.
func (s *HTTPSubmitter) Download(ctx context.Context, fileID string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.URL("download_file", fileID), nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to download %s", fileID)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", errors.Wrapf(err, "failed to download %s", fileID)
	}

	filename := fileID
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, nil
}

func encodeMultipart(fileField, filename string, r io.Reader, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", errors.Wrap(err, "failed to read attachment")
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", errors.Wrapf(err, "failed to write field %s", k)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to finish form")
	}
	return &buf, mw.FormDataContentType(), nil
}
