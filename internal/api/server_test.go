package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"wxaloft/internal/ingest"
	"wxaloft/internal/storage"
)

type stubProcessor struct {
	result ingest.Result
	bodies []string
}

func (p *stubProcessor) Process(_ context.Context, body []byte) ingest.Result {
	p.bodies = append(p.bodies, string(body))
	return p.result
}

func newTestServer(t *testing.T, p Processor, store ObservationStore) *Server {
	t.Helper()
	s := NewServer(Config{MaxBodyBytes: 1024}, p, store, http.NotFoundHandler(), nil)
	s.now = func() time.Time { return time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC) }
	return s
}

func TestIngestSuccess(t *testing.T) {
	p := &stubProcessor{result: ingest.Result{Status: http.StatusOK}}
	router := newTestServer(t, p, nil).Router()

	req := httptest.NewRequest(http.MethodPost, "/acars", strings.NewReader(`{"auth":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=UTF-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "The operation completed successfully.") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(p.bodies) != 1 || p.bodies[0] != `{"auth":"x"}` {
		t.Errorf("processor saw %q", p.bodies)
	}
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   string
	}{
		{http.StatusBadRequest, "invalid JSON", "Bad request (invalid JSON)"},
		{http.StatusForbidden, "unknown authenticator", "Forbidden (unknown authenticator)"},
		{http.StatusInternalServerError, "unable to prepare statements", "Internal server error (unable to prepare statements)"},
		{http.StatusBadRequest, "<script>", "Bad request (&lt;script&gt;)"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			p := &stubProcessor{result: ingest.Result{Status: tt.status, Reason: tt.reason}}
			router := newTestServer(t, p, nil).Router()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/acars", strings.NewReader(`{}`)))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=UTF-8" {
				t.Errorf("Content-Type = %q", ct)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestIngestBodyLimit(t *testing.T) {
	p := &stubProcessor{result: ingest.Result{Status: http.StatusOK}}
	router := newTestServer(t, p, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/acars", strings.NewReader(strings.Repeat("x", 2048))))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request too large") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(p.bodies) != 0 {
		t.Error("oversized body reached the processor")
	}
}

func TestIngestWrongMethod(t *testing.T) {
	p := &stubProcessor{result: ingest.Result{Status: http.StatusOK}}
	router := newTestServer(t, p, nil).Router()

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/acars", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=UTF-8" {
			t.Errorf("%s: Content-Type = %q", method, ct)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
			t.Errorf("%s: Allow = %q", method, allow)
		}
	}
	if len(p.bodies) != 0 {
		t.Errorf("processor called %d times", len(p.bodies))
	}
}

func TestCustomIngestPath(t *testing.T) {
	p := &stubProcessor{result: ingest.Result{Status: http.StatusOK}}
	router := NewServer(Config{IngestPath: "/wx/ingest"}, p, nil, nil, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wx/ingest", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without a handler: status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, nil, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if resp["time"] != "2024-03-10T13:00:00Z" {
		t.Errorf("time = %q", resp["time"])
	}
}

// seedObservations returns a store with one area, KSEA, and two linked
// observations: one 30 minutes old and one 3 hours old.
func seedObservations(t *testing.T, now time.Time) *storage.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	st, err := storage.OpenSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "wx.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	clientID, err := st.AddClient(ctx, storage.NewClient{Name: "R1", AuthHash: []byte("h")})
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	if _, err := st.AddArea(ctx, storage.Area{Name: "KSEA", Latitude: 47.4502, Longitude: -122.3088, Timezone: "America/Los_Angeles"}); err != nil {
		t.Fatalf("AddArea: %v", err)
	}

	sess, err := st.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer sess.Release()
	w, err := sess.PrepareObservations(ctx)
	if err != nil {
		t.Fatalf("PrepareObservations: %v", err)
	}
	defer w.Close()

	speed, dir, temp := 20, 180, -48.5
	for _, age := range []time.Duration{30 * time.Minute, 3 * time.Hour} {
		o := storage.Observation{
			Received:  now.Add(-age + 15*time.Second),
			Observed:  now.Add(-age),
			Frequency: 131.55,
			ClientID:  clientID,
			Altitude:  33000,
			Source:    "N12345",
			Latitude:  47.45,
			Longitude: -122.31,
		}
		if age < time.Hour {
			o.WindSpeed, o.WindDirection, o.Temperature = &speed, &dir, &temp
		}
		id, err := w.Insert(ctx, o)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if _, err := w.LinkAreas(ctx, id, o.Latitude, o.Longitude, ingest.Radius); err != nil {
			t.Fatalf("LinkAreas: %v", err)
		}
	}
	return st
}

func getObs(t *testing.T, router http.Handler, query string) (*httptest.ResponseRecorder, []map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/obs?"+query, nil))
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var out []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, out
}

func TestObservationsDefaults(t *testing.T) {
	now := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)
	s := newTestServer(t, nil, seedObservations(t, now))
	router := s.Router()

	rec, obs := getObs(t, router, "area=KSEA")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=UTF-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1 within PT2H", len(obs))
	}

	o := obs[0]
	// 12:30Z is 05:30 PDT; DST started at 10:00Z that day.
	if o["observed"] != "2024-03-10T05:30:00-0700" {
		t.Errorf("observed = %v", o["observed"])
	}
	if o["received"] != "2024-03-10T05:30:15-0700" {
		t.Errorf("received = %v", o["received"])
	}
	if o["frequency"] != 131.55 || o["altitude"] != 33000.0 || o["source"] != "N12345" {
		t.Errorf("unexpected values: %v", o)
	}
	if o["wind_speed"] != 20.0 || o["wind_dir"] != 180.0 || o["temperature"] != -48.5 {
		t.Errorf("unexpected weather: %v", o)
	}
	if o["latitude"] != 47.45 || o["longitude"] != -122.31 {
		t.Errorf("unexpected position: %v", o)
	}
}

func TestObservationsZonesAndSince(t *testing.T) {
	now := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)
	st := seedObservations(t, now)
	router := newTestServer(t, nil, st).Router()

	ksea, err := st.LookupArea(context.Background(), "KSEA")
	if err != nil {
		t.Fatalf("LookupArea: %v", err)
	}

	tests := []struct {
		query    string
		count    int
		observed string
	}{
		{"area=KSEA&zone=UTC", 1, "2024-03-10T12:30:00Z"},
		{"area=KSEA&zone=GMT", 1, "2024-03-10T12:30:00Z"},
		{"area=KSEA&zone=Australia/Sydney", 1, "2024-03-10T23:30:00+1100"},
		{"area=KSEA&zone=local&since=PT6H", 2, "2024-03-10T03:00:00-0700"},
		{"area=KSEA&zone=UTC&since=PT10M", 0, ""},
		{"area=" + strconv.FormatInt(ksea.ID, 10) + "&zone=UTC", 1, "2024-03-10T12:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, obs := getObs(t, router, tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if len(obs) != tt.count {
				t.Fatalf("got %d observations, want %d", len(obs), tt.count)
			}
			if tt.count > 0 && obs[0]["observed"] != tt.observed {
				t.Errorf("observed = %v, want %s", obs[0]["observed"], tt.observed)
			}
		})
	}

	// The older observation carries no weather; nulls must be explicit.
	_, obs := getObs(t, router, "area=KSEA&zone=UTC&since=PT6H")
	old := obs[0]
	for _, k := range []string{"wind_speed", "wind_dir", "temperature"} {
		v, ok := old[k]
		if !ok || v != nil {
			t.Errorf("%s = %v (present %v), want null", k, v, ok)
		}
	}
}

func TestObservationsEmptyIsArray(t *testing.T) {
	now := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)
	router := newTestServer(t, nil, seedObservations(t, now)).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/obs?area=KSEA&since=PT1M", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestObservationsRejects(t *testing.T) {
	now := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)
	router := newTestServer(t, nil, seedObservations(t, now)).Router()

	tests := []struct {
		query  string
		reason string
	}{
		{"", "missing area= parameter"},
		{"area=KXXX", "unknown area"},
		{"area=999", "unknown area"},
		{"area=KSEA&zone=Mars/Olympus", "unknown zone"},
		{"area=KSEA&since=two+hours", "invalid duration"},
		{"area=KSEA&since=PT6H1S", "excessive duration"},
		{"area=KSEA&since=P1D", "excessive duration"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/obs?"+tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["error"] != tt.reason {
				t.Errorf("error = %q, want %q", resp["error"], tt.reason)
			}
		})
	}
}
