package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orthomate/internal/dashboard"
	"github.com/thebtf/orthomate/internal/export"
	"github.com/thebtf/orthomate/internal/privacy"
	"github.com/thebtf/orthomate/pkg/models"
)

const (
	// maxJSONBody caps request bodies for state updates.
	maxJSONBody = 1 << 20
	// maxAudioChunk caps one dictation chunk; the Whisper upload limit is 25 MB.
	maxAudioChunk = 25 << 20
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeControllerError maps dashboard errors onto HTTP statuses.
func writeControllerError(w http.ResponseWriter, err error) {
	var (
		te *dashboard.TranscriptionError
		se *dashboard.StoreError
		ce *dashboard.ClipboardError
		ee *dashboard.ExportError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dashboard.ErrUnknownTemplate):
		status = http.StatusBadRequest
	case errors.Is(err, dashboard.ErrDictationActive), errors.Is(err, dashboard.ErrNotRecording):
		status = http.StatusConflict
	case errors.As(err, &te), errors.As(err, &se):
		status = http.StatusBadGateway
	case errors.As(err, &ce), errors.As(err, &ee):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Error().Str("error", privacy.ScrubNumbers(err.Error())).Int("status", status).Msg("Dashboard action failed")
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleHealth reports readiness. An unreachable store degrades the status
// without failing the check, since composing and exporting still work.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	if !s.ready.Load() {
		status, code = "starting", http.StatusServiceUnavailable
	}
	body := map[string]interface{}{
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.store != nil {
		store := map[string]interface{}{"backend": s.store.Backend(), "ok": true}
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("backend", s.store.Backend()).Msg("Record store unreachable")
			store["ok"] = false
			store["error"] = err.Error()
			if code == http.StatusOK {
				status = "degraded"
			}
		}
		body["store"] = store
	}
	body["status"] = status
	writeJSON(w, code, body)
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleSelectTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template models.Template `json:"template"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.controller.SelectTemplate(req.Template); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleSetGuidelines(w http.ResponseWriter, r *http.Request) {
	var flags models.GuidelineFlags
	if !decodeJSON(w, r, &flags) {
		return
	}
	s.controller.SetGuidelines(flags)
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleSetNextSteps(w http.ResponseWriter, r *http.Request) {
	var steps models.NextSteps
	if !decodeJSON(w, r, &steps) {
		return
	}
	s.controller.SetNextSteps(steps)
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleSetPatient(w http.ResponseWriter, r *http.Request) {
	var info models.PatientInfo
	if !decodeJSON(w, r, &info) {
		return
	}
	s.controller.SetPatient(info)
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleEditNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.controller.EditNote(req.Note)
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleDictationStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.StartDictation(); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleDictationChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioChunk))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
		return
	}
	if err := s.controller.AppendAudio(chunk); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"received": len(chunk)})
}

func (s *Service) handleDictationStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MimeType string `json:"mimeType"`
	}
	// The body is optional; an empty one keeps the default clip type.
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	transcript, err := s.controller.StopDictation(r.Context(), req.MimeType)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transcript": transcript,
		"state":      s.controller.State(),
	})
}

func (s *Service) handleDictationCancel(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.CancelDictation(); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Service) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.controller.Save(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"record": rec})
}

func (s *Service) handleSearchRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.controller.Search(r.Context(), r.URL.Query().Get("template"))
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Service) handleExportWord(w http.ResponseWriter, _ *http.Request) {
	f, err := s.controller.ExportWord()
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeAttachment(w, f)
}

func (s *Service) handleExportPDF(w http.ResponseWriter, _ *http.Request) {
	f, err := s.controller.ExportPDF()
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeAttachment(w, f)
}

func writeAttachment(w http.ResponseWriter, f *export.File) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Service) handleCopy(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Copy(); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"copied": true})
}

func (s *Service) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Analytics())
}
