package dashboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/thebtf/orthomate/internal/analytics"
	"github.com/thebtf/orthomate/internal/composer"
	"github.com/thebtf/orthomate/internal/export"
	"github.com/thebtf/orthomate/internal/templates"
	"github.com/thebtf/orthomate/internal/transcription"
	"github.com/thebtf/orthomate/pkg/models"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []*models.Record
	saveErr  error
	findErr  error
	findHits int
}

func (f *fakeStore) SaveRecord(_ context.Context, r *models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *r
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeStore) FindByTemplate(_ context.Context, template string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findHits++
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*models.Record
	for _, r := range f.records {
		if string(r.Template) == template {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
	got   transcription.Audio
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio transcription.Audio) (string, error) {
	f.calls++
	f.got = audio
	return f.text, f.err
}

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) Write(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeNotifier) Broadcast(data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data.(Event))
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

// ControllerSuite exercises dashboard transitions against in-memory adapters.
type ControllerSuite struct {
	suite.Suite
	store       *fakeStore
	transcriber *fakeTranscriber
	clipboard   *fakeClipboard
	notifier    *fakeNotifier
	ctrl        *Controller
	clock       time.Time
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.store = &fakeStore{}
	s.transcriber = &fakeTranscriber{text: "Patient reports left knee pain."}
	s.clipboard = &fakeClipboard{}
	s.notifier = &fakeNotifier{}
	s.clock = time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	s.ctrl = New(Deps{
		Templates:   templates.Default(),
		Store:       s.store,
		Transcriber: s.transcriber,
		Clipboard:   s.clipboard,
		Analytics:   analytics.NewTrackerWithMeter(noop.NewMeterProvider().Meter("test")),
		Notifier:    s.notifier,
	})
	s.ctrl.now = func() time.Time { return s.clock }
	ids := 0
	s.ctrl.newID = func() string {
		ids++
		return "rec-" + string(rune('0'+ids))
	}
}

func (s *ControllerSuite) TestInitialState() {
	st := s.ctrl.State()
	s.Equal(models.Template("Rotator Cuff Tear"), st.Template)
	s.Len(st.Templates, 6)
	s.Equal(composer.Compose("Rotator Cuff Tear", models.GuidelineFlags{}, models.NextSteps{}), st.Note)
	s.False(st.Recording)
	s.NotNil(st.SearchResults)
	s.Empty(st.SearchResults)
	s.Equal(0, st.Analytics.TotalNotes)
}

func (s *ControllerSuite) TestTemplateDescriptions() {
	s.Empty(s.ctrl.State().Descriptions)

	path := filepath.Join(s.T().TempDir(), "templates.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`templates:
  - name: Ankle Sprain
    description: Lateral ligament injury
  - name: Hip Arthritis
`), 0600))
	registry, err := templates.Load(path)
	s.Require().NoError(err)

	c := New(Deps{Templates: registry})
	st := c.State()
	s.Equal([]models.Template{"Ankle Sprain", "Hip Arthritis"}, st.Templates)
	s.Equal(map[models.Template]string{"Ankle Sprain": "Lateral ligament injury"}, st.Descriptions)
}

func (s *ControllerSuite) TestComposeExample() {
	s.Require().NoError(s.ctrl.SelectTemplate("Knee Arthritis"))
	s.ctrl.SetGuidelines(models.GuidelineFlags{PTTried: true})
	s.ctrl.SetNextSteps(models.NextSteps{MRI: true})

	s.Equal("Patient is being evaluated for Knee Arthritis.\nPhysical therapy attempted.\nMRI ordered.\nNote aligns with MTUS/ODG standards.",
		s.ctrl.State().Note)
	s.Equal([]string{EventNote, EventNote, EventNote}, s.notifier.types())
}

func (s *ControllerSuite) TestUnknownTemplateLeavesState() {
	before := s.ctrl.State()

	err := s.ctrl.SelectTemplate("Tennis Elbow")
	s.ErrorIs(err, ErrUnknownTemplate)
	s.Empty(cmp.Diff(before, s.ctrl.State()))
	s.Empty(s.notifier.types())
}

func (s *ControllerSuite) TestManualEditSurvivesUntilRegenerate() {
	s.ctrl.EditNote("free text")
	s.ctrl.SetPatient(models.PatientInfo{Name: "Jane Roe", DOB: "1970-01-01", MRN: "123"})
	s.Equal("free text", s.ctrl.State().Note)

	s.ctrl.SetNextSteps(models.NextSteps{Referral: true})
	st := s.ctrl.State()
	s.Equal(composer.Compose(st.Template, models.GuidelineFlags{}, models.NextSteps{Referral: true}), st.Note)
	s.Equal("Jane Roe", st.Patient.Name)
}

func (s *ControllerSuite) TestDictationFlow() {
	s.ErrorIs(s.ctrl.AppendAudio([]byte("x")), ErrNotRecording)
	_, err := s.ctrl.StopDictation(context.Background(), "")
	s.ErrorIs(err, ErrNotRecording)

	s.Require().NoError(s.ctrl.StartDictation())
	s.ErrorIs(s.ctrl.StartDictation(), ErrDictationActive)
	s.True(s.ctrl.State().Recording)

	s.Require().NoError(s.ctrl.AppendAudio([]byte("abc")))
	s.Require().NoError(s.ctrl.AppendAudio([]byte("def")))
	s.Equal(6, s.ctrl.State().BufferedBytes)

	s.ctrl.EditNote("typed before dictation")
	text, err := s.ctrl.StopDictation(context.Background(), "audio/ogg")
	s.Require().NoError(err)
	s.Equal("Patient reports left knee pain.", text)

	st := s.ctrl.State()
	s.False(st.Recording)
	s.Equal(0, st.BufferedBytes)
	s.Equal("Patient reports left knee pain.", st.Note)
	s.Equal([]byte("abcdef"), s.transcriber.got.Data)
	s.Equal("audio/ogg", s.transcriber.got.MimeType)
	s.Equal([]string{EventDictationStarted, EventDictationStopped, EventTranscript}, s.notifier.types())
}

func (s *ControllerSuite) TestDictationFailureKeepsNote() {
	s.transcriber.err = errors.New("whisper: status 500")
	s.ctrl.EditNote("keep me")

	s.Require().NoError(s.ctrl.StartDictation())
	s.Require().NoError(s.ctrl.AppendAudio([]byte("abc")))
	_, err := s.ctrl.StopDictation(context.Background(), "")

	var te *TranscriptionError
	s.Require().ErrorAs(err, &te)
	s.ErrorIs(err, s.transcriber.err)
	s.Equal("keep me", s.ctrl.State().Note)
	s.False(s.ctrl.State().Recording)

	// A failed session does not block the next one.
	s.NoError(s.ctrl.StartDictation())
}

func (s *ControllerSuite) TestCancelDictation() {
	s.ErrorIs(s.ctrl.CancelDictation(), ErrNotRecording)

	s.ctrl.EditNote("keep me")
	s.Require().NoError(s.ctrl.StartDictation())
	s.Require().NoError(s.ctrl.AppendAudio([]byte("partial")))
	s.Require().NoError(s.ctrl.CancelDictation())

	st := s.ctrl.State()
	s.False(st.Recording)
	s.Equal(0, st.BufferedBytes)
	s.Equal("keep me", st.Note)
	s.Equal(0, s.transcriber.calls)
	s.Equal([]string{EventDictationStarted, EventDictationStopped}, s.notifier.types())

	s.NoError(s.ctrl.StartDictation())
}

func (s *ControllerSuite) TestDictationWithoutAudio() {
	s.Require().NoError(s.ctrl.StartDictation())
	_, err := s.ctrl.StopDictation(context.Background(), "")

	var te *TranscriptionError
	s.Require().ErrorAs(err, &te)
	s.ErrorIs(err, ErrNoAudio)
	s.Equal(0, s.transcriber.calls)
}

func (s *ControllerSuite) TestSaveThenSearch() {
	s.Require().NoError(s.ctrl.SelectTemplate("Knee Arthritis"))
	s.ctrl.SetPatient(models.PatientInfo{Name: "Jane Roe", MRN: "42"})

	rec, err := s.ctrl.Save(context.Background())
	s.Require().NoError(err)
	s.Equal("rec-1", rec.ID)
	s.Equal("2026-03-14T09:26:53.589Z", rec.Date)
	s.Equal(models.Template("Knee Arthritis"), rec.Template)
	s.Equal("Jane Roe", rec.Patient.Name)

	snap := s.ctrl.Analytics()
	s.Equal(1, snap.TotalNotes)
	s.Equal(1, snap.TemplateCount["Knee Arthritis"])

	found, err := s.ctrl.Search(context.Background(), "Knee Arthritis")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Empty(cmp.Diff(rec, found[0]))

	st := s.ctrl.State()
	s.Equal("Knee Arthritis", st.SearchQuery)
	s.Len(st.SearchResults, 1)
}

func (s *ControllerSuite) TestSaveFailure() {
	s.store.saveErr = errors.New("connection refused")
	before := s.ctrl.State()

	rec, err := s.ctrl.Save(context.Background())
	s.Nil(rec)
	var se *StoreError
	s.Require().ErrorAs(err, &se)
	s.Equal("save", se.Op)
	s.ErrorIs(err, s.store.saveErr)
	s.Empty(cmp.Diff(before, s.ctrl.State()))
	s.Equal(0, s.ctrl.Analytics().TotalNotes)
}

func (s *ControllerSuite) TestSaveIgnoresCancelledRequest() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ctrl.Save(ctx)
	s.NoError(err)
	s.Len(s.store.records, 1)
}

func (s *ControllerSuite) TestSearchNoMatch() {
	found, err := s.ctrl.Search(context.Background(), "Meniscus Tear")
	s.NoError(err)
	s.NotNil(found)
	s.Empty(found)
}

func (s *ControllerSuite) TestSearchBlankQueryIsNoop() {
	_, err := s.ctrl.Save(context.Background())
	s.Require().NoError(err)
	_, err = s.ctrl.Search(context.Background(), "Rotator Cuff Tear")
	s.Require().NoError(err)
	s.Len(s.ctrl.State().SearchResults, 1)

	for _, q := range []string{"", "   ", "\t"} {
		found, err := s.ctrl.Search(context.Background(), q)
		s.NoError(err)
		s.Empty(found)
		s.Empty(s.ctrl.State().SearchResults)
	}
	s.Equal(1, s.store.findHits)
}

func (s *ControllerSuite) TestSearchFailureKeepsResults() {
	_, err := s.ctrl.Save(context.Background())
	s.Require().NoError(err)
	_, err = s.ctrl.Search(context.Background(), "Rotator Cuff Tear")
	s.Require().NoError(err)

	s.store.findErr = errors.New("timeout")
	_, err = s.ctrl.Search(context.Background(), "Hip Arthritis")
	var se *StoreError
	s.Require().ErrorAs(err, &se)
	s.Equal("query", se.Op)
	st := s.ctrl.State()
	s.Len(st.SearchResults, 1)
	s.Equal("Rotator Cuff Tear", st.SearchQuery)
}

func (s *ControllerSuite) TestExports() {
	s.Require().NoError(s.ctrl.SelectTemplate("Distal Radius Fracture"))
	s.ctrl.EditNote("line one\nline two")

	w, err := s.ctrl.ExportWord()
	s.Require().NoError(err)
	s.Equal("Distal_Radius_Fracture_Note.docx", w.Name)
	text, err := export.WordText(w.Data)
	s.Require().NoError(err)
	s.Equal("line one\nline two", text)

	p, err := s.ctrl.ExportPDF()
	s.Require().NoError(err)
	s.Equal("Distal_Radius_Fracture_Note.pdf", p.Name)
	s.Equal("line one\nline two", export.PDFText(p.Data))
}

func (s *ControllerSuite) TestExportFailure() {
	boom := errors.New("render failed")
	s.ctrl.pdf = func(string, string) (*export.File, error) { return nil, boom }

	_, err := s.ctrl.ExportPDF()
	var ee *ExportError
	s.Require().ErrorAs(err, &ee)
	s.Equal("pdf", ee.Format)
	s.ErrorIs(err, boom)
}

func (s *ControllerSuite) TestExportRejectsControlCharacters() {
	s.ctrl.EditNote("x\vy")

	_, err := s.ctrl.ExportWord()
	var ee *ExportError
	s.Require().ErrorAs(err, &ee)
	s.Equal("word", ee.Format)
	s.ErrorIs(err, export.ErrUnsupportedCharacter)

	_, err = s.ctrl.ExportPDF()
	s.Require().ErrorAs(err, &ee)
	s.Equal("pdf", ee.Format)
}

func (s *ControllerSuite) TestCopy() {
	s.ctrl.EditNote("copy me")
	s.Require().NoError(s.ctrl.Copy())
	s.Equal("copy me", s.clipboard.text)

	s.clipboard.err = errors.New("no display")
	err := s.ctrl.Copy()
	var ce *ClipboardError
	s.ErrorAs(err, &ce)
}

func (s *ControllerSuite) TestStateIsDeepCopy() {
	_, err := s.ctrl.Save(context.Background())
	s.Require().NoError(err)
	_, err = s.ctrl.Search(context.Background(), "Rotator Cuff Tear")
	s.Require().NoError(err)

	st := s.ctrl.State()
	st.SearchResults[0].Note = "mutated"
	st.Templates[0] = "mutated"
	st.Analytics.TemplateCount["Rotator Cuff Tear"] = 99

	again := s.ctrl.State()
	s.NotEqual("mutated", again.SearchResults[0].Note)
	s.NotEqual(models.Template("mutated"), again.Templates[0])
	s.Equal(1, again.Analytics.TemplateCount["Rotator Cuff Tear"])
}

func (s *ControllerSuite) TestMissingAdapters() {
	c := New(Deps{})

	_, err := c.Save(context.Background())
	var se *StoreError
	s.ErrorAs(err, &se)

	s.Require().NoError(c.StartDictation())
	s.Require().NoError(c.AppendAudio([]byte("a")))
	_, err = c.StopDictation(context.Background(), "")
	var te *TranscriptionError
	s.ErrorAs(err, &te)

	var ce *ClipboardError
	s.ErrorAs(c.Copy(), &ce)
}

func (s *ControllerSuite) TestConcurrentTransitions() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.ctrl.SetGuidelines(models.GuidelineFlags{PTTried: i%2 == 0})
			s.ctrl.EditNote("edit")
			_, _ = s.ctrl.Save(context.Background())
			_ = s.ctrl.State()
		}(i)
	}
	wg.Wait()
	s.Equal(20, s.ctrl.Analytics().TotalNotes)
}

func TestErrorMessages(t *testing.T) {
	base := errors.New("boom")
	cases := map[string]error{
		"transcription failed: boom":     &TranscriptionError{Err: base},
		"record store save failed: boom": &StoreError{Op: "save", Err: base},
		"copy to clipboard failed: boom": &ClipboardError{Err: base},
		"word export failed: boom":       &ExportError{Format: "word", Err: base},
	}
	for want, err := range cases {
		if err.Error() != want {
			t.Errorf("got %q, want %q", err.Error(), want)
		}
		if !errors.Is(err, base) {
			t.Errorf("%T does not unwrap", err)
		}
	}
}
