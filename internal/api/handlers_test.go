package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jlauha/seuranta/internal/lease"
	"github.com/jlauha/seuranta/internal/model"
	"github.com/jlauha/seuranta/internal/presence"
	"github.com/jlauha/seuranta/internal/storage"
)

// setupTestServer builds the full API stack over real SQLite storage and a
// lease cache, returning the cache so tests can stage leases.
func setupTestServer(t *testing.T) (*http.ServeMux, *lease.Cache, storage.Storage) {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache := lease.NewCache()
	engine := presence.NewEngine(store, cache)

	mux := http.NewServeMux()
	NewHandler(engine, store, cache).RegisterRoutes(mux)

	return mux, cache, store
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEntity(t *testing.T, rec *httptest.ResponseRecorder) model.TrackedEntity {
	t.Helper()

	var entity model.TrackedEntity
	if err := json.NewDecoder(rec.Body).Decode(&entity); err != nil {
		t.Fatalf("decoding entity response: %v", err)
	}
	return entity
}

func TestCreateEntity(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"}})

	rec := doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"45spoons."}`, "10.0.0.5:40000")
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}

	entity := decodeEntity(t, rec)
	if entity.Name != "45spoons" {
		t.Errorf("got name %s, want 45spoons", entity.Name)
	}
	if len(entity.Devices) != 1 || entity.Devices[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("got devices %v, want the caller's device", entity.Devices)
	}
}

func TestCreateEntity_ResubmissionIsOK(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"}})

	rec := doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:40000")
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d on first submission, want 201", rec.Code)
	}
	first := decodeEntity(t, rec)

	// the same name again merges instead of creating
	rec = doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:40001")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d on resubmission, want 200", rec.Code)
	}
	if got := decodeEntity(t, rec); got.ID != first.ID {
		t.Errorf("resubmission returned entity %s, want %s", got.ID, first.ID)
	}
}

func TestCreateEntity_NoLease(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.99:40000")
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}

	entity := decodeEntity(t, rec)
	if len(entity.Devices) != 0 {
		t.Errorf("got %d devices, want 0", len(entity.Devices))
	}
}

func TestCreateEntity_BadRequests(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid JSON", `{not json`, http.StatusBadRequest},
		{"empty name", `{"name":""}`, http.StatusBadRequest},
		{"name sanitizes to empty", `{"name":"..."}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodPost, "/api/entities", tt.body, "10.0.0.5:40000")
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetEntity(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	created := decodeEntity(t, doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:1"))

	rec := doRequest(t, mux, http.MethodGet, "/api/entities/"+created.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got := decodeEntity(t, rec); got.Name != "alex" {
		t.Errorf("got name %s, want alex", got.Name)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/entities/missing", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d for missing entity, want 404", rec.Code)
	}
}

func TestListEntities(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/entities", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty list body = %s, want []", body)
	}

	doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:1")

	rec = doRequest(t, mux, http.MethodGet, "/api/entities", "", "")
	var entities []model.TrackedEntity
	if err := json.NewDecoder(rec.Body).Decode(&entities); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "alex" {
		t.Errorf("got %v, want [alex]", entities)
	}
}

func TestRenameEntity(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	created := decodeEntity(t, doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:1"))
	doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"sam"}`, "10.0.0.6:1")

	rec := doRequest(t, mux, http.MethodPut, "/api/entities/"+created.ID, `{"name":"zoe"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := decodeEntity(t, rec); got.Name != "zoe" {
		t.Errorf("got name %s, want zoe", got.Name)
	}

	// taken name conflicts
	rec = doRequest(t, mux, http.MethodPut, "/api/entities/"+created.ID, `{"name":"sam"}`, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("got status %d for taken name, want 409", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPut, "/api/entities/missing", `{"name":"new"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d for missing entity, want 404", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPut, "/api/entities/"+created.ID, `{"name":"!!!"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d for empty name, want 400", rec.Code)
	}
}

func TestWhoami(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"}})
	created := decodeEntity(t, doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:40000"))

	rec := doRequest(t, mux, http.MethodGet, "/api/whoami", "", "10.0.0.5:40001")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := decodeEntity(t, rec); got.ID != created.ID {
		t.Errorf("got entity %s, want %s", got.ID, created.ID)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/whoami", "", "10.0.0.77:40000")
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d for unknown address, want 404", rec.Code)
	}
}

func TestGetPresent(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"}})
	doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:40000")

	rec := doRequest(t, mux, http.MethodGet, "/api/present", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var body struct {
		Present []string `json:"present"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Present) != 1 || body.Present[0] != "alex" {
		t.Errorf("got present %v, want [alex]", body.Present)
	}

	// leases gone means nobody is present
	cache.Replace(nil)
	rec = doRequest(t, mux, http.MethodGet, "/api/present", "", "")
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Present == nil || len(body.Present) != 0 {
		t.Errorf("got present %v, want empty array", body.Present)
	}
}

func TestListLeases(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{
		{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"},
		{IP: "10.0.0.6", MAC: "11:22:33:44:55:66", Hostname: ""},
	})

	rec := doRequest(t, mux, http.MethodGet, "/api/leases", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var leases []model.Lease
	if err := json.NewDecoder(rec.Body).Decode(&leases); err != nil {
		t.Fatalf("decoding leases: %v", err)
	}
	if len(leases) != 2 {
		t.Errorf("got %d leases, want 2", len(leases))
	}
}

func TestListDevices(t *testing.T) {
	mux, cache, _ := setupTestServer(t)

	cache.Replace([]model.Lease{{IP: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop"}})
	doRequest(t, mux, http.MethodPost, "/api/entities", `{"name":"alex"}`, "10.0.0.5:40000")

	rec := doRequest(t, mux, http.MethodGet, "/api/devices", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var devices []model.Device
	if err := json.NewDecoder(rec.Body).Decode(&devices); err != nil {
		t.Fatalf("decoding devices: %v", err)
	}
	if len(devices) != 1 || devices[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("got devices %v, want the registered device", devices)
	}
}

func TestAuthMiddleware(t *testing.T) {
	mux, _, _ := setupTestServer(t)
	protected := AuthMiddleware("secret", mux)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/present", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_DisabledWhenNoToken(t *testing.T) {
	mux, _, _ := setupTestServer(t)
	open := AuthMiddleware("", mux)

	req := httptest.NewRequest(http.MethodGet, "/api/present", nil)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d with auth disabled, want 200", rec.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
