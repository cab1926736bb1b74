package devserver

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/omochice/polyglot-chat/internal/language"
)

type historyEntry struct {
	Username  string `json:"username"`
	Room      string `json:"room"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type uploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
	AudioBase64    string `json:"audio_base64"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorFrame{Error: msg})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records := s.store.records(r.PathValue("room"))
	out := make([]historyEntry, len(records))
	for i, rec := range records {
		out[i] = historyEntry{
			Username:  rec.Username,
			Room:      rec.Room,
			Content:   rec.Content,
			Timestamp: rec.Timestamp.Format(timestampLayout),
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	s.store.reset(room)
	s.logger.Info().Str("room", room).Msg("room reset")
	s.writeJSON(w, http.StatusCreated, map[string]string{"message": "Room '" + room + "' created/reset."})
}

// readUpload parses a multipart request and returns the named file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return "", nil, false
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing form file "+field)
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read "+field)
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r, "file")
	if !ok {
		return
	}
	room, username := r.FormValue("room"), r.FormValue("username")
	if room == "" || username == "" {
		s.writeError(w, http.StatusBadRequest, "room and username are required")
		return
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "") + cleanExt(name)
	s.store.putFile(id, storedFile{name: name, data: data})
	fileURL := "/static/uploads/" + id

	frame := fileFrame{
		Type:      "file",
		Username:  username,
		Room:      room,
		FileName:  name,
		FileID:    id,
		FileURL:   fileURL,
		Timestamp: s.now().Format(timestampLayout),
	}
	for _, member := range s.hub.members(room) {
		member.send(frame)
	}
	s.logger.Info().Str("room", room).Str("username", username).Str("file_id", id).Int("size", len(data)).Msg("file uploaded")

	s.writeJSON(w, http.StatusOK, uploadResponse{FileID: id, Filename: name, FileURL: fileURL})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := s.store.file(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "File not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.name}))
	_, _ = w.Write(f.data)
}

func (s *Server) handleStaticFile(w http.ResponseWriter, r *http.Request) {
	f, ok := s.store.file(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(f.data))
	_, _ = w.Write(f.data)
}

func (s *Server) handleVoiceMessage(w http.ResponseWriter, r *http.Request) {
	_, audio, ok := s.readUpload(w, r, "audio")
	if !ok {
		return
	}
	room, username := r.FormValue("room"), r.FormValue("username")
	if room == "" || username == "" {
		s.writeError(w, http.StatusBadRequest, "room and username are required")
		return
	}
	preferred := r.FormValue("preferred_language")
	if preferred == "" {
		preferred = language.Default
	}

	spoken, err := s.speech.Transcribe(audio, preferred)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Speech-to-text failed: "+err.Error())
		return
	}
	detected := preferred
	if strings.TrimSpace(spoken) != "" {
		detected = s.translator.Detect(spoken)
	}

	ts := s.now().Format(timestampLayout)
	for _, member := range s.hub.members(room) {
		lang := member.language()
		translated := spoken
		if lang != detected {
			translated = s.translator.Translate(spoken, detected, lang)
		}
		frame := chatFrame{
			Username:         username,
			Room:             room,
			Content:          translated,
			Timestamp:        ts,
			DetectedLanguage: detected,
			OriginalContent:  spoken,
			OriginalLanguage: detected,
		}
		if synthesized, err := s.speech.Synthesize(translated, lang); err != nil {
			member.logger.Warn().Err(err).Msg("speech synthesis failed")
		} else {
			encoded := base64.StdEncoding.EncodeToString(synthesized)
			frame.AudioBase64 = &encoded
		}
		member.send(frame)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVoiceTranslate(w http.ResponseWriter, r *http.Request) {
	_, audio, ok := s.readUpload(w, r, "audio_file")
	if !ok {
		return
	}
	source, target := r.FormValue("source_lang"), r.FormValue("target_lang")
	if source == "" {
		source = "hi"
	}
	if target == "" {
		target = language.Default
	}

	spoken, err := s.speech.Transcribe(audio, source)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Speech-to-text failed: "+err.Error())
		return
	}
	translated := s.translator.Translate(spoken, source, target)
	synthesized, err := s.speech.Synthesize(translated, target)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Speech synthesis failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, translateResponse{
		TranslatedText: translated,
		AudioBase64:    base64.StdEncoding.EncodeToString(synthesized),
	})
}

func (s *Server) handleSupportedLanguages(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	for _, l := range language.All() {
		out[l.Code] = strings.ToLower(l.Name)
	}
	s.writeJSON(w, http.StatusOK, out)
}
