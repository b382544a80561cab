package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/openhymnal/hymnal-api/internal/database"
	"github.com/openhymnal/hymnal-api/internal/logger"
)

// =============================================================================
// TEST SETUP HELPERS
// =============================================================================

// testEnv sets up a complete test environment with database and router
type testEnv struct {
	db     *database.DB
	router http.Handler
}

// setupTest creates a fresh test environment
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	// Create in-memory database
	dbCfg := database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}

	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))
	// Handlers log through the context helpers, which go via the default logger
	slog.SetDefault(quiet)

	db, err := database.Open(dbCfg, quiet)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	// Run migrations
	ctx := context.Background()
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	handlers := NewHandlers(db)
	router := SetupRoutes(handlers, quiet)

	t.Cleanup(func() {
		db.Close()
	})

	return &testEnv{
		db:     db,
		router: router,
	}
}

// do runs a request through the full router and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// createHymn creates a hymn through the API and returns it.
func (env *testEnv) createHymn(t *testing.T, number int, title string, verses []database.Verse) *database.Hymn {
	t.Helper()

	rr := env.do(t, "POST", "/api/hymns", database.HymnInput{
		Number:      number,
		Title:       title,
		HymnContent: verses,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create hymn %d: status = %d, body: %s", number, rr.Code, rr.Body.String())
	}

	var hymn database.Hymn
	parseData(t, rr, &hymn)
	return &hymn
}

// parseData decodes the data field of the response envelope into v.
func parseData(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *ErrorInfo      `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v, body: %s", err, rr.Body.String())
	}
	if !resp.Success {
		t.Fatalf("response not successful: %+v", resp.Error)
	}
	if v != nil {
		if err := json.Unmarshal(resp.Data, v); err != nil {
			t.Fatalf("decode data: %v, data: %s", err, resp.Data)
		}
	}
}

// parseError decodes the error field of the response envelope.
func parseError(t *testing.T, rr *httptest.ResponseRecorder) *ErrorInfo {
	t.Helper()

	var resp struct {
		Success bool       `json:"success"`
		Error   *ErrorInfo `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v, body: %s", err, rr.Body.String())
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected error response, body: %s", rr.Body.String())
	}
	return resp.Error
}

func testVerses() []database.Verse {
	return []database.Verse{
		{Order: 1, SubTitle: "Verse 1", Content: "Amazing grace, how sweet the sound"},
		{Order: 2, SubTitle: "Chorus", Content: "My chains are gone, I've been set free"},
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthCheck(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var data map[string]string
	parseData(t, rr, &data)
	if data["status"] != "healthy" {
		t.Errorf("status = %q, want %q", data["status"], "healthy")
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateHymn(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, "POST", "/api/hymns", database.HymnInput{
		Number:      100,
		Title:       "Amazing Grace",
		HymnContent: testVerses(),
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var hymn database.Hymn
	parseData(t, rr, &hymn)

	if hymn.ID == "" {
		t.Error("created hymn has no id")
	}
	if hymn.Number != 100 {
		t.Errorf("Number = %d, want 100", hymn.Number)
	}
	if hymn.Title != "Amazing Grace" {
		t.Errorf("Title = %q, want %q", hymn.Title, "Amazing Grace")
	}
	if len(hymn.HymnContent) != 2 {
		t.Errorf("HymnContent has %d verses, want 2", len(hymn.HymnContent))
	}
}

func TestCreateHymn_DuplicateNumber(t *testing.T) {
	env := setupTest(t)
	env.createHymn(t, 100, "A", nil)

	rr := env.do(t, "POST", "/api/hymns", database.HymnInput{Number: 100, Title: "B"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusConflict)
	}
	if errInfo := parseError(t, rr); errInfo.Code != "DUPLICATE" {
		t.Errorf("error code = %q, want %q", errInfo.Code, "DUPLICATE")
	}

	// First hymn must not have been overwritten
	rr = env.do(t, "GET", "/api/hymns/100", nil)
	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 1 || hymns[0].Title != "A" {
		t.Errorf("hymn 100 = %v, want original titled %q", hymns, "A")
	}
}

func TestCreateHymn_ValidationError(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name  string
		input database.HymnInput
	}{
		{"missing title", database.HymnInput{Number: 1}},
		{"zero number", database.HymnInput{Title: "No Number"}},
		{"negative number", database.HymnInput{Number: -1, Title: "Negative"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/hymns", tt.input)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if errInfo := parseError(t, rr); errInfo.Code != "VALIDATION" {
				t.Errorf("error code = %q, want %q", errInfo.Code, "VALIDATION")
			}
		})
	}
}

func TestCreateHymn_MalformedBody(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest("POST", "/api/hymns", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// =============================================================================
// READ
// =============================================================================

func TestListHymns(t *testing.T) {
	env := setupTest(t)

	// Empty collection
	rr := env.do(t, "GET", "/api/hymns", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}
	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 0 {
		t.Errorf("list on empty store returned %d hymns, want 0", len(hymns))
	}

	env.createHymn(t, 100, "Amazing Grace", testVerses())
	env.createHymn(t, 101, "Be Thou My Vision", nil)
	env.createHymn(t, 102, "It Is Well", nil)

	rr = env.do(t, "GET", "/api/hymns", nil)
	parseData(t, rr, &hymns)
	if len(hymns) != 3 {
		t.Errorf("list returned %d hymns, want 3", len(hymns))
	}
}

func TestGetHymnByNumber(t *testing.T) {
	env := setupTest(t)
	created := env.createHymn(t, 100, "Amazing Grace", testVerses())

	rr := env.do(t, "GET", "/api/hymns/100", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 1 {
		t.Fatalf("returned %d hymns, want 1", len(hymns))
	}
	if hymns[0].ID != created.ID || hymns[0].Title != "Amazing Grace" {
		t.Errorf("hymn = %+v, want created record", hymns[0])
	}
	if len(hymns[0].HymnContent) != 2 {
		t.Errorf("hymnContent has %d verses, want 2", len(hymns[0].HymnContent))
	}
}

func TestGetHymnByNumber_NoMatch(t *testing.T) {
	env := setupTest(t)

	// Missing number is an empty sequence with 200, not a 404
	rr := env.do(t, "GET", "/api/hymns/999", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 0 {
		t.Errorf("returned %d hymns, want 0", len(hymns))
	}
}

func TestGetHymnByNumber_BadNumber(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, "GET", "/api/hymns/abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearchHymns(t *testing.T) {
	env := setupTest(t)
	env.createHymn(t, 100, "Amazing Grace", testVerses())
	env.createHymn(t, 101, "Be Thou My Vision", []database.Verse{
		{Order: 1, SubTitle: "Verse 1", Content: "Be thou my vision, O Lord of my heart"},
	})

	rr := env.do(t, "GET", "/api/hymns/search/grace", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 1 {
		t.Fatalf("search returned %d hymns, want 1", len(hymns))
	}
	if hymns[0].Number != 100 {
		t.Errorf("matched number = %d, want 100", hymns[0].Number)
	}
}

func TestSearchHymns_NoMatch(t *testing.T) {
	env := setupTest(t)
	env.createHymn(t, 100, "Amazing Grace", testVerses())

	rr := env.do(t, "GET", "/api/hymns/search/zebra", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 0 {
		t.Errorf("search returned %d hymns, want 0", len(hymns))
	}
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateHymn(t *testing.T) {
	env := setupTest(t)
	created := env.createHymn(t, 100, "Amazing Grace", testVerses())

	rr := env.do(t, "PUT", "/api/hymns/100", map[string]interface{}{
		"title": "New Title",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var updated database.Hymn
	parseData(t, rr, &updated)
	if updated.Title != "New Title" {
		t.Errorf("Title = %q, want %q", updated.Title, "New Title")
	}
	if updated.Number != 100 || updated.ID != created.ID {
		t.Errorf("update changed identity: number=%d id=%q", updated.Number, updated.ID)
	}
	if len(updated.HymnContent) != 2 {
		t.Errorf("HymnContent has %d verses, want 2 (unchanged)", len(updated.HymnContent))
	}

	// Visible on re-read
	rr = env.do(t, "GET", "/api/hymns/100", nil)
	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 1 || hymns[0].Title != "New Title" {
		t.Errorf("re-read = %v, want updated title", hymns)
	}
}

func TestUpdateHymn_NotFound(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, "PUT", "/api/hymns/999", map[string]interface{}{"title": "Nope"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if errInfo := parseError(t, rr); errInfo.Code != "NOT_FOUND" {
		t.Errorf("error code = %q, want %q", errInfo.Code, "NOT_FOUND")
	}
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteHymn(t *testing.T) {
	env := setupTest(t)
	created := env.createHymn(t, 100, "Amazing Grace", testVerses())

	rr := env.do(t, "DELETE", "/api/hymns/100", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var deleted database.Hymn
	parseData(t, rr, &deleted)
	if deleted.ID != created.ID {
		t.Errorf("deleted id = %q, want %q", deleted.ID, created.ID)
	}

	// Subsequent read is empty
	rr = env.do(t, "GET", "/api/hymns/100", nil)
	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 0 {
		t.Errorf("hymn still present after delete: %v", hymns)
	}

	// Deleting again reports not found
	rr = env.do(t, "DELETE", "/api/hymns/100", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeleteHymnByID(t *testing.T) {
	env := setupTest(t)
	created := env.createHymn(t, 100, "Amazing Grace", testVerses())

	rr := env.do(t, "DELETE", "/api/hymns/by-id/"+created.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var deleted database.Hymn
	parseData(t, rr, &deleted)
	if deleted.Number != 100 {
		t.Errorf("deleted number = %d, want 100", deleted.Number)
	}

	rr = env.do(t, "DELETE", "/api/hymns/by-id/"+created.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// =============================================================================
// STATS
// =============================================================================

func TestGetHymnStats(t *testing.T) {
	env := setupTest(t)
	env.createHymn(t, 100, "Amazing Grace", testVerses())
	env.createHymn(t, 250, "It Is Well", nil)

	rr := env.do(t, "GET", "/api/hymns/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusOK)
	}

	var stats database.HymnStats
	parseData(t, rr, &stats)
	if stats.TotalHymns != 2 {
		t.Errorf("TotalHymns = %d, want 2", stats.TotalHymns)
	}
	if stats.TotalVerses != 2 {
		t.Errorf("TotalVerses = %d, want 2", stats.TotalVerses)
	}
	if stats.LowestNumber != 100 || stats.HighestNumber != 250 {
		t.Errorf("number range = [%d, %d], want [100, 250]", stats.LowestNumber, stats.HighestNumber)
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestHymnRoundTrip(t *testing.T) {
	env := setupTest(t)

	// create
	created := env.createHymn(t, 500, "Original Title", testVerses())

	// read-by-number yields the created record
	rr := env.do(t, "GET", "/api/hymns/500", nil)
	var hymns []database.Hymn
	parseData(t, rr, &hymns)
	if len(hymns) != 1 || hymns[0].ID != created.ID {
		t.Fatalf("read after create = %v, want created record", hymns)
	}

	// update
	rr = env.do(t, "PUT", "/api/hymns/500", map[string]interface{}{"title": "Updated Title"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d", rr.Code, http.StatusOK)
	}

	// read reflects the update
	rr = env.do(t, "GET", "/api/hymns/500", nil)
	parseData(t, rr, &hymns)
	if len(hymns) != 1 || hymns[0].Title != "Updated Title" {
		t.Fatalf("read after update = %v, want updated record", hymns)
	}

	// delete
	rr = env.do(t, "DELETE", "/api/hymns/500", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusOK)
	}

	// read is now empty
	rr = env.do(t, "GET", "/api/hymns/500", nil)
	parseData(t, rr, &hymns)
	if len(hymns) != 0 {
		t.Fatalf("read after delete = %v, want empty", hymns)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	env := setupTest(t)

	rr := env.do(t, "GET", "/health", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}
}

func TestRequestIDMiddleware_Context(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logger.RequestID(r.Context())
		}),
	)

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen == "" {
		t.Fatal("request ID missing from request context")
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header request ID = %q, context has %q", got, seen)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/hymns", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q",
			rr.Header().Get("Access-Control-Allow-Origin"), "*")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	handler := RecoveryMiddleware(quiet)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}),
	)

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}
