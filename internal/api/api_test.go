package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voss/murmur/internal/enrich"
	"github.com/voss/murmur/internal/legacy"
	"github.com/voss/murmur/internal/lifecycle"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/ratelimit"
	"github.com/voss/murmur/internal/repo"
	"github.com/voss/murmur/internal/storage"
	"github.com/voss/murmur/internal/store"
	"github.com/voss/murmur/internal/testutil"
)

type stubEnricher struct {
	result *enrich.Result
	err    error
}

func (s *stubEnricher) Enrich(_ context.Context, _ []byte, _ string, _ string) (*enrich.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubGenerator struct {
	content *models.InsightContent
	answer  string
	err     error
}

func (s *stubGenerator) Generate(_ context.Context, _ []enrich.NoteContext, _ string) (*models.InsightContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.content, nil
}

func (s *stubGenerator) Ask(_ context.Context, _ []enrich.NoteContext, _, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type testEnv struct {
	repos   *repo.Repos
	mgr     *store.Manager
	ctrl    *lifecycle.Controller
	router  http.Handler
	enrich  *stubEnricher
	gen     *stubGenerator
	limiter *ratelimit.Limiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAuth(t, false, "")
}

func newTestEnvAuth(t *testing.T, authEnabled bool, token string) *testEnv {
	t.Helper()

	mgr := testutil.TestManager(t)
	repos := repo.New(mgr)

	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	en := &stubEnricher{result: &enrich.Result{
		Title:         "Stub note",
		Summary:       "stub summary",
		Transcription: "stub transcript",
		Tags:          []string{"stub"},
	}}
	gen := &stubGenerator{
		content: &models.InsightContent{Summary: "generated"},
		answer:  "generated answer",
	}

	ctrl := lifecycle.NewController(repos.Notes, en, nil)
	insights := lifecycle.NewInsightService(repos.Insights, gen, nil)
	importer := legacy.NewImporter(fs, repos, nil)
	limiter := ratelimit.New(100, time.Minute)

	h := NewHandler(repos, ctrl, insights, importer, mgr)
	router := NewRouter(h, authEnabled, token, limiter)

	return &testEnv{
		repos:   repos,
		mgr:     mgr,
		ctrl:    ctrl,
		router:  router,
		enrich:  en,
		gen:     gen,
		limiter: limiter,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func recordingRequest(t *testing.T, audio []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "recording.webm")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/recordings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	req := recordingRequest(t, []byte("opus"), map[string]string{
		"mimeType": "audio/webm",
		"duration": "3.2",
		"locale":   "en",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}

	var created NoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != models.StatusTranscribing {
		t.Errorf("status = %q, want transcribing", created.Status)
	}
	if created.DefaultTitle == "" {
		t.Error("default title missing")
	}

	env.ctrl.Wait()

	w = env.do(t, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var got NoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Status != models.StatusReady {
		t.Errorf("status after enrichment = %q, want ready", got.Status)
	}
	if got.Title != "Stub note" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestCreateRecordingMissingAudio(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("locale", "en")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/recordings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRetryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.enrich.err = errors.New("down")

	req := recordingRequest(t, []byte("a"), nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	var created NoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	env.ctrl.Wait()

	// Retry of a non-error note is rejected once the note recovers, but
	// right now the note is in error and the retry is accepted.
	env.enrich.err = nil
	w = env.do(t, http.MethodPost, "/notes/"+created.ID+"/retry", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("retry = %d, body = %s", w.Code, w.Body.String())
	}
	env.ctrl.Wait()

	w = env.do(t, http.MethodPost, "/notes/"+created.ID+"/retry", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("retry of ready note = %d, want 400", w.Code)
	}
}

func TestRetryMissingNote(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/notes/nope/retry", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetNoteAudio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{
		ID:          "n1",
		Audio:       []byte("raw-audio"),
		AudioFormat: "audio/webm",
		Status:      models.StatusReady,
	}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/notes/n1/audio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/webm" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "raw-audio" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestListNotesExcludesAudio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Audio: []byte("secret"), Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secret")) {
		t.Error("audio payload leaked into the list response")
	}
}

func TestUpdateNoteFolderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	// Assigning a nonexistent folder fails.
	w := env.do(t, http.MethodPut, "/notes/n1", []byte(`{"folderId":"ghost"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("ghost folder = %d, want 400", w.Code)
	}

	// A real folder works.
	folder, err := env.repos.Folders.Create(ctx, "Work", "")
	if err != nil {
		t.Fatal(err)
	}
	w = env.do(t, http.MethodPut, "/notes/n1", []byte(`{"folderId":"`+folder.ID+`"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("assign = %d, body = %s", w.Code, w.Body.String())
	}

	// Explicit null clears the assignment.
	w = env.do(t, http.MethodPut, "/notes/n1", []byte(`{"folderId":null,"title":"Renamed"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("clear = %d", w.Code)
	}
	var got NoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.FolderID != nil {
		t.Errorf("folder id = %v, want nil", *got.FolderID)
	}
	if got.Title != "Renamed" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestUpdateNoteNormalizesTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPut, "/notes/n1", []byte(`{"tags":[" Work ","work","HOME",""]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var got NoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	want := []string{"work", "home"}
	if len(got.Tags) != len(want) || got.Tags[0] != want[0] || got.Tags[1] != want[1] {
		t.Errorf("tags = %v, want %v", got.Tags, want)
	}

	// The stored record matches what was returned.
	stored, err := env.repos.Notes.Get(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Tags) != 2 || stored.Tags[0] != "work" || stored.Tags[1] != "home" {
		t.Errorf("stored tags = %v", stored.Tags)
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodDelete, "/notes/n1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/notes/n1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestFolderCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/folders", []byte(`{"name":"Work"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var folder models.Folder
	_ = json.Unmarshal(w.Body.Bytes(), &folder)
	if folder.Color == "" {
		t.Error("default color not applied")
	}

	w = env.do(t, http.MethodPut, "/folders/"+folder.ID, []byte(`{"name":"Projects","color":"#123456"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/folders/"+folder.ID, nil)
	var got models.Folder
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Name != "Projects" || got.Color != "#123456" {
		t.Errorf("folder = %+v", got)
	}

	w = env.do(t, http.MethodDelete, "/folders/"+folder.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
}

func TestFolderCreateEmptyName(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/folders", []byte(`{"name":"  "}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestInsightGenerateAndAsk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tr := "transcript"
	n := &models.VoiceNote{ID: "n1", Transcription: &tr, Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/insights", []byte(`{"name":"Review","noteIds":["n1"]}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var ins models.Insight
	_ = json.Unmarshal(w.Body.Bytes(), &ins)

	w = env.do(t, http.MethodPost, "/insights/"+ins.ID+"/generate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate = %d, body = %s", w.Code, w.Body.String())
	}
	var generated models.Insight
	_ = json.Unmarshal(w.Body.Bytes(), &generated)
	if generated.GeneratedContent == nil || generated.GeneratedContent.Summary != "generated" {
		t.Errorf("content = %+v", generated.GeneratedContent)
	}

	w = env.do(t, http.MethodPost, "/insights/"+ins.ID+"/ask", []byte(`{"prompt":"what next?"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("ask = %d, body = %s", w.Code, w.Body.String())
	}
	var asked models.Insight
	_ = json.Unmarshal(w.Body.Bytes(), &asked)
	if len(asked.GeneratedContent.CustomSections) != 1 {
		t.Errorf("sections = %d, want 1", len(asked.GeneratedContent.CustomSections))
	}
}

func TestInsightGenerateFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gen.err = errors.New("model unavailable")
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}
	ins, err := env.repos.Insights.Create(ctx, "Review", []string{"n1"})
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/insights/"+ins.ID+"/generate", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestImageUploadServeDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ins, err := env.repos.Insights.Create(ctx, "Review", nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "chart.png")
	_, _ = part.Write([]byte("png-bytes"))
	_ = mw.WriteField("width", "640")
	_ = mw.WriteField("height", "480")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/insights/"+ins.ID+"/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var img ImageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &img)
	if img.Width != 640 || img.Height != 480 {
		t.Errorf("dimensions = %dx%d", img.Width, img.Height)
	}

	// The insight references the new image.
	reloaded, _ := env.repos.Insights.Get(ctx, ins.ID)
	if len(reloaded.ImageIDs) != 1 || reloaded.ImageIDs[0] != img.ID {
		t.Errorf("image ids = %v", reloaded.ImageIDs)
	}

	w = env.do(t, http.MethodGet, "/images/"+img.ID, nil)
	if w.Code != http.StatusOK || w.Body.String() != "png-bytes" {
		t.Errorf("serve = %d, body = %q", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodDelete, "/images/"+img.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	reloaded, _ = env.repos.Insights.Get(ctx, ins.ID)
	if len(reloaded.ImageIDs) != 0 {
		t.Errorf("image ids after delete = %v", reloaded.ImageIDs)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/settings/theme", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("absent key = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPut, "/settings/theme", []byte(`"dark"`))
	if w.Code != http.StatusNoContent {
		t.Fatalf("set = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/settings/theme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("dark")) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = env.do(t, http.MethodPut, "/settings/theme", []byte(`{broken`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestEraseClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := &models.VoiceNote{ID: "n1", Status: models.StatusReady}
	if err := env.repos.Notes.Put(ctx, n); err != nil {
		t.Fatal(err)
	}
	if _, err := env.repos.Folders.Create(ctx, "Work", ""); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/erase", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("erase = %d", w.Code)
	}

	// The store re-initializes empty on the next read.
	notes, err := env.repos.Notes.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes after erase = %d", len(notes))
	}
	folders, err := env.repos.Folders.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 0 {
		t.Errorf("folders after erase = %d", len(folders))
	}
}

func TestAuthToken(t *testing.T) {
	env := newTestEnvAuth(t, true, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestRateLimitOnAIEndpoints(t *testing.T) {
	mgr := testutil.TestManager(t)
	repos := repo.New(mgr)
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	en := &stubEnricher{result: &enrich.Result{Title: "t", Transcription: "x"}}
	ctrl := lifecycle.NewController(repos.Notes, en, nil)
	insights := lifecycle.NewInsightService(repos.Insights, &stubGenerator{}, nil)
	importer := legacy.NewImporter(fs, repos, nil)

	h := NewHandler(repos, ctrl, insights, importer, mgr)
	router := NewRouter(h, false, "", ratelimit.New(1, time.Minute))
	t.Cleanup(ctrl.Wait)

	req := recordingRequest(t, []byte("a"), nil)
	req.RemoteAddr = "10.1.1.1:9999"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first = %d, body = %s", w.Code, w.Body.String())
	}

	req = recordingRequest(t, []byte("a"), nil)
	req.RemoteAddr = "10.1.1.1:9999"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", w.Code)
	}

	// Read endpoints are not limited.
	listReq := httptest.NewRequest(http.MethodGet, "/notes", nil)
	listReq.RemoteAddr = "10.1.1.1:9999"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, listReq)
	if w.Code != http.StatusOK {
		t.Errorf("list = %d, want 200", w.Code)
	}
}
