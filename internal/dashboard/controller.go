// Package dashboard holds the clinician's working state and dispatches note
// actions to the record store, transcription, export and clipboard adapters.
package dashboard

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orthomate/internal/analytics"
	"github.com/thebtf/orthomate/internal/composer"
	"github.com/thebtf/orthomate/internal/export"
	"github.com/thebtf/orthomate/internal/privacy"
	"github.com/thebtf/orthomate/internal/templates"
	"github.com/thebtf/orthomate/internal/transcription"
	"github.com/thebtf/orthomate/pkg/models"
)

// RecordStore persists and queries saved notes.
type RecordStore interface {
	SaveRecord(ctx context.Context, r *models.Record) error
	FindByTemplate(ctx context.Context, template string) ([]*models.Record, error)
}

// Clipboard receives copied note text.
type Clipboard interface {
	Write(text string) error
}

// Notifier fans completions out to connected dashboards.
type Notifier interface {
	Broadcast(data interface{})
}

// Event types published to the Notifier.
const (
	EventNote             = "note"
	EventDictationStarted = "dictation_started"
	EventDictationStopped = "dictation_stopped"
	EventTranscript       = "transcript"
	EventRecordSaved      = "record_saved"
	EventSearch           = "search"
)

// Event is the payload broadcast after a state change.
type Event struct {
	Type     string          `json:"type"`
	Template models.Template `json:"template,omitempty"`
	RecordID string          `json:"recordId,omitempty"`
	Results  int             `json:"results,omitempty"`
}

// State is a point-in-time copy of the dashboard for rendering.
type State struct {
	Templates     []models.Template          `json:"templates"`
	Descriptions  map[models.Template]string `json:"templateDescriptions"`
	Template      models.Template            `json:"template"`
	Guidelines    models.GuidelineFlags      `json:"guidelines"`
	NextSteps     models.NextSteps           `json:"nextSteps"`
	Patient       models.PatientInfo         `json:"patient"`
	Note          string                     `json:"note"`
	Recording     bool                       `json:"recording"`
	BufferedBytes int                        `json:"bufferedBytes"`
	SearchQuery   string                     `json:"searchQuery"`
	SearchResults []*models.Record           `json:"searchResults"`
	Analytics     models.AnalyticsSnapshot   `json:"analytics"`
}

// Deps are the collaborators a Controller dispatches to.
type Deps struct {
	Templates   *templates.Registry
	Store       RecordStore
	Transcriber transcription.Transcriber
	Clipboard   Clipboard
	Analytics   *analytics.Tracker
	Notifier    Notifier
}

// Controller owns one clinician's dashboard session. State transitions are
// serialized by mu; adapter calls run outside the lock on snapshots.
type Controller struct {
	deps Deps

	now   func() time.Time
	newID func() string
	word  func(text, filename string) (*export.File, error)
	pdf   func(text, filename string) (*export.File, error)

	mu         sync.Mutex
	template   models.Template
	guidelines models.GuidelineFlags
	steps      models.NextSteps
	patient    models.PatientInfo
	note       string
	recording  bool
	audio      bytes.Buffer
	query      string
	results    []*models.Record
}

// New creates a controller with the first registry template selected and a
// freshly composed note.
func New(deps Deps) *Controller {
	if deps.Templates == nil {
		deps.Templates = templates.Default()
	}
	if deps.Analytics == nil {
		deps.Analytics = analytics.NewTracker()
	}
	c := &Controller{
		deps:     deps,
		now:      time.Now,
		newID:    uuid.NewString,
		word:     export.Word,
		pdf:      export.PDF,
		template: deps.Templates.First(),
		results:  []*models.Record{},
	}
	c.regenerate()
	return c
}

// regenerate rebuilds the note from template and flags. Caller holds mu
// (or has exclusive access during construction).
func (c *Controller) regenerate() {
	c.note = composer.Compose(c.template, c.guidelines, c.steps)
}

func (c *Controller) notify(ev Event) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Broadcast(ev)
	}
}

// State returns a deep copy of the current dashboard state.
func (c *Controller) State() State {
	c.mu.Lock()
	s := State{
		Template:      c.template,
		Guidelines:    c.guidelines,
		NextSteps:     c.steps,
		Patient:       c.patient,
		Note:          c.note,
		Recording:     c.recording,
		BufferedBytes: c.audio.Len(),
		SearchQuery:   c.query,
		SearchResults: copyRecords(c.results),
	}
	c.mu.Unlock()

	s.Templates = c.deps.Templates.Names()
	s.Descriptions = make(map[models.Template]string)
	for _, name := range s.Templates {
		if t, ok := c.deps.Templates.Get(name); ok && t.Description != "" {
			s.Descriptions[name] = t.Description
		}
	}
	s.Analytics = c.deps.Analytics.Snapshot()
	return s
}

// SelectTemplate switches template and regenerates the note.
func (c *Controller) SelectTemplate(name models.Template) error {
	if !c.deps.Templates.Has(name) {
		return ErrUnknownTemplate
	}
	c.mu.Lock()
	c.template = name
	c.regenerate()
	c.mu.Unlock()

	c.notify(Event{Type: EventNote, Template: name})
	return nil
}

// SetGuidelines replaces the guideline flags and regenerates the note.
func (c *Controller) SetGuidelines(flags models.GuidelineFlags) {
	c.mu.Lock()
	c.guidelines = flags
	c.regenerate()
	tmpl := c.template
	c.mu.Unlock()

	c.notify(Event{Type: EventNote, Template: tmpl})
}

// SetNextSteps replaces the next-step flags and regenerates the note.
func (c *Controller) SetNextSteps(steps models.NextSteps) {
	c.mu.Lock()
	c.steps = steps
	c.regenerate()
	tmpl := c.template
	c.mu.Unlock()

	c.notify(Event{Type: EventNote, Template: tmpl})
}

// SetPatient stores patient details. The note is not touched.
func (c *Controller) SetPatient(info models.PatientInfo) {
	c.mu.Lock()
	c.patient = info
	c.mu.Unlock()
}

// EditNote overwrites the note with text typed by the clinician.
func (c *Controller) EditNote(text string) {
	c.mu.Lock()
	c.note = text
	c.mu.Unlock()
}

// StartDictation opens the single dictation session with an empty buffer.
func (c *Controller) StartDictation() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrDictationActive
	}
	c.recording = true
	c.audio.Reset()
	c.mu.Unlock()

	c.notify(Event{Type: EventDictationStarted})
	return nil
}

// AppendAudio buffers one captured chunk.
func (c *Controller) AppendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return ErrNotRecording
	}
	c.audio.Write(chunk)
	return nil
}

// CancelDictation ends the session and discards the buffered clip without
// transcribing it. The note is left untouched.
func (c *Controller) CancelDictation() error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.recording = false
	dropped := c.audio.Len()
	c.audio.Reset()
	c.mu.Unlock()

	log.Info().Int("bytes", dropped).Msg("Dictation cancelled")
	c.notify(Event{Type: EventDictationStopped})
	return nil
}

// StopDictation ends the session and transcribes the buffered clip. On
// success the transcript replaces the note.
func (c *Controller) StopDictation(ctx context.Context, mimeType string) (string, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	c.recording = false
	clip := bytes.Clone(c.audio.Bytes())
	c.audio.Reset()
	c.mu.Unlock()

	c.notify(Event{Type: EventDictationStopped})

	if len(clip) == 0 {
		return "", &TranscriptionError{Err: ErrNoAudio}
	}
	if c.deps.Transcriber == nil {
		return "", &TranscriptionError{Err: errNotConfigured("transcription")}
	}

	text, err := c.deps.Transcriber.Transcribe(context.WithoutCancel(ctx), transcription.Audio{
		Data:     clip,
		MimeType: mimeType,
	})
	if err != nil {
		log.Warn().Str("error", privacy.ScrubNumbers(err.Error())).Int("bytes", len(clip)).Msg("Transcription failed")
		return "", &TranscriptionError{Err: err}
	}

	c.mu.Lock()
	c.note = text
	c.mu.Unlock()

	c.notify(Event{Type: EventTranscript})
	return text, nil
}

// Save persists a snapshot of the current note as a new record.
func (c *Controller) Save(ctx context.Context) (*models.Record, error) {
	c.mu.Lock()
	rec := models.NewRecord(c.newID(), c.patient, c.template, c.note, c.now())
	c.mu.Unlock()

	if c.deps.Store == nil {
		return nil, &StoreError{Op: "save", Err: errNotConfigured("record store")}
	}
	if err := c.deps.Store.SaveRecord(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("template", string(rec.Template)).Msg("Failed to save record")
		return nil, &StoreError{Op: "save", Err: err}
	}

	c.deps.Analytics.RecordSave(ctx, rec.Template)
	log.Info().
		Str("id", rec.ID).
		Str("template", string(rec.Template)).
		Str("patient", privacy.Initials(rec.Patient.Name)).
		Str("mrn", privacy.MaskIdentifier(rec.Patient.MRN)).
		Msg("Record saved")

	c.notify(Event{Type: EventRecordSaved, Template: rec.Template, RecordID: rec.ID})
	out := *rec
	return &out, nil
}

// Search replaces the result list with records whose template equals query.
// A blank query clears the results without calling the store. On failure the
// previous query and results are kept.
func (c *Controller) Search(ctx context.Context, query string) ([]*models.Record, error) {
	if strings.TrimSpace(query) == "" {
		c.mu.Lock()
		c.query = query
		c.results = []*models.Record{}
		c.mu.Unlock()
		c.notify(Event{Type: EventSearch})
		return []*models.Record{}, nil
	}

	if c.deps.Store == nil {
		return nil, &StoreError{Op: "query", Err: errNotConfigured("record store")}
	}
	found, err := c.deps.Store.FindByTemplate(context.WithoutCancel(ctx), query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Failed to query records")
		return nil, &StoreError{Op: "query", Err: err}
	}
	if found == nil {
		found = []*models.Record{}
	}

	c.mu.Lock()
	c.query = query
	c.results = copyRecords(found)
	c.mu.Unlock()

	c.notify(Event{Type: EventSearch, Template: models.Template(query), Results: len(found)})
	return copyRecords(found), nil
}

// ExportWord renders the current note as a .docx attachment.
func (c *Controller) ExportWord() (*export.File, error) {
	return c.exportNote("word", "docx", c.word)
}

// ExportPDF renders the current note as a PDF attachment.
func (c *Controller) ExportPDF() (*export.File, error) {
	return c.exportNote("pdf", "pdf", c.pdf)
}

func (c *Controller) exportNote(format, ext string, render func(string, string) (*export.File, error)) (*export.File, error) {
	c.mu.Lock()
	note, tmpl := c.note, c.template
	c.mu.Unlock()

	f, err := render(note, export.Filename(string(tmpl), ext))
	if err != nil {
		log.Error().Err(err).Str("format", format).Msg("Export failed")
		return nil, &ExportError{Format: format, Err: err}
	}
	return f, nil
}

// Copy writes the current note to the clipboard.
func (c *Controller) Copy() error {
	c.mu.Lock()
	note := c.note
	c.mu.Unlock()

	if c.deps.Clipboard == nil {
		return &ClipboardError{Err: errNotConfigured("clipboard")}
	}
	if err := c.deps.Clipboard.Write(note); err != nil {
		return &ClipboardError{Err: err}
	}
	return nil
}

// Analytics returns the save counters.
func (c *Controller) Analytics() models.AnalyticsSnapshot {
	return c.deps.Analytics.Snapshot()
}

type errNotConfigured string

func (e errNotConfigured) Error() string { return string(e) + " not configured" }

func copyRecords(in []*models.Record) []*models.Record {
	out := make([]*models.Record, len(in))
	for i, r := range in {
		cp := *r
		out[i] = &cp
	}
	return out
}
