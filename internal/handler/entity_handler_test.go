package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/middleware"
	"besiktning-sync-server/internal/repository"
	"besiktning-sync-server/internal/service"

	"github.com/gorilla/mux"
)

func newEntityRouter(t *testing.T, withAuth bool) *mux.Router {
	t.Helper()

	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	entities := repository.NewEntityRepository()
	svc := service.NewEntityService(db, service.NewRegistry(entities), entities,
		repository.NewChangeLogRepository())

	r := mux.NewRouter()
	if withAuth {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), middleware.UserIDKey, int64(1))
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}

	NewEntityHandler(svc, domain.EntityTypeProperty).
		RegisterRoutes(r.PathPrefix("/properties").Subrouter())
	NewEntityHandler(svc, domain.EntityTypeInspection).
		RegisterRoutes(r.PathPrefix("/inspections").Subrouter())
	return r
}

func doRequest(t *testing.T, r *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, body []byte, dst any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding envelope %s: %v", body, err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("decoding data %s: %v", envelope.Data, err)
	}
}

func createProperty(t *testing.T, r *mux.Router) *domain.Property {
	t.Helper()

	rec := doRequest(t, r, "POST", "/properties",
		`{"client_id":"c-1","property_type":"apartment_building","designation":"Kv Eken 1","address":"Storgatan 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var p domain.Property
	decodeData(t, rec.Body.Bytes(), &p)
	return &p
}

func TestEntityHandlerCreate(t *testing.T) {
	r := newEntityRouter(t, true)

	p := createProperty(t, r)

	if p.ID == 0 {
		t.Error("created property has no id")
	}
	if p.Revision != 1 {
		t.Errorf("revision = %d, want 1", p.Revision)
	}
	if p.ClientID == nil || *p.ClientID != "c-1" {
		t.Errorf("client_id = %v, want c-1", p.ClientID)
	}
}

func TestEntityHandlerCreateValidation(t *testing.T) {
	r := newEntityRouter(t, true)

	rec := doRequest(t, r, "POST", "/properties", `{"property_type":"apartment_building"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code, _ := decodeError(t, rec.Body.String()); code != "validation_error" {
		t.Errorf("error code = %q", code)
	}
}

func TestEntityHandlerRequiresAuth(t *testing.T) {
	r := newEntityRouter(t, false)

	rec := doRequest(t, r, "POST", "/properties",
		`{"property_type":"apartment_building","designation":"D","address":"A"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestEntityHandlerGet(t *testing.T) {
	r := newEntityRouter(t, true)

	p := createProperty(t, r)

	rec := doRequest(t, r, "GET", fmt.Sprintf("/properties/%d", p.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var found domain.Property
	decodeData(t, rec.Body.Bytes(), &found)
	if found.ID != p.ID || found.Designation != "Kv Eken 1" {
		t.Errorf("get returned %+v", found)
	}

	rec = doRequest(t, r, "GET", "/properties/9999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing get status = %d, want 404", rec.Code)
	}
}

func TestEntityHandlerUpdate(t *testing.T) {
	r := newEntityRouter(t, true)

	p := createProperty(t, r)
	path := fmt.Sprintf("/properties/%d", p.ID)

	rec := doRequest(t, r, "PUT", path, `{"base_revision":1,"address":"Nygatan 2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated domain.Property
	decodeData(t, rec.Body.Bytes(), &updated)
	if updated.Address != "Nygatan 2" || updated.Revision != 2 {
		t.Errorf("updated = %+v", updated)
	}

	rec = doRequest(t, r, "PUT", path, `{"address":"Gammelgatan 3"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("update without base_revision status = %d, want 400", rec.Code)
	}
	if _, message := decodeError(t, rec.Body.String()); !strings.Contains(message, "base_revision") {
		t.Errorf("error message = %q", message)
	}

	rec = doRequest(t, r, "PUT", path, `{"base_revision":1,"address":"Gammelgatan 3"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", rec.Code)
	}

	var conflictEnvelope struct {
		Error struct {
			Details struct {
				CurrentRevision int64           `json:"current_revision"`
				ServerState     json.RawMessage `json:"server_state"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conflictEnvelope); err != nil {
		t.Fatalf("decoding conflict envelope: %v", err)
	}
	if conflictEnvelope.Error.Details.CurrentRevision != 2 {
		t.Errorf("conflict current_revision = %d, want 2", conflictEnvelope.Error.Details.CurrentRevision)
	}
	if len(conflictEnvelope.Error.Details.ServerState) == 0 {
		t.Error("conflict details carry no server_state")
	}
}

func TestEntityHandlerDeleteAndRestore(t *testing.T) {
	r := newEntityRouter(t, true)

	p := createProperty(t, r)
	path := fmt.Sprintf("/properties/%d", p.ID)

	rec := doRequest(t, r, "DELETE", path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var result struct {
		Deleted bool `json:"deleted"`
	}
	decodeData(t, rec.Body.Bytes(), &result)
	if !result.Deleted {
		t.Error("delete reported deleted = false")
	}

	rec = doRequest(t, r, "DELETE", path, "")
	decodeData(t, rec.Body.Bytes(), &result)
	if result.Deleted {
		t.Error("repeat delete reported deleted = true")
	}

	if rec := doRequest(t, r, "GET", path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, r, "POST", path+"/restore", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var restored domain.Property
	decodeData(t, rec.Body.Bytes(), &restored)
	if restored.DeletedAt != nil {
		t.Error("restored property still has deleted_at")
	}

	if rec := doRequest(t, r, "GET", path, ""); rec.Code != http.StatusOK {
		t.Errorf("get after restore status = %d, want 200", rec.Code)
	}
}

func TestEntityHandlerListWithParentFilter(t *testing.T) {
	r := newEntityRouter(t, true)

	p := createProperty(t, r)

	rec := doRequest(t, r, "POST", "/properties",
		`{"property_type":"apartment_building","designation":"Kv Björken 2","address":"Lillgatan 5"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second create status = %d", rec.Code)
	}
	var other domain.Property
	decodeData(t, rec.Body.Bytes(), &other)

	for i, propertyID := range []int64{p.ID, p.ID, other.ID} {
		body := fmt.Sprintf(`{"property_id":%d,"date":"2026-08-2%d"}`, propertyID, i)
		if rec := doRequest(t, r, "POST", "/inspections", body); rec.Code != http.StatusCreated {
			t.Fatalf("inspection create %d status = %d, body = %s", i, rec.Code, rec.Body.String())
		}
	}

	rec = doRequest(t, r, "GET", fmt.Sprintf("/inspections?property_id=%d", p.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listing struct {
		Items []domain.Inspection `json:"items"`
		Count int                 `json:"count"`
	}
	decodeData(t, rec.Body.Bytes(), &listing)
	if listing.Count != 2 || len(listing.Items) != 2 {
		t.Fatalf("filtered list = %+v", listing)
	}
	for _, insp := range listing.Items {
		if insp.PropertyID != p.ID {
			t.Errorf("list leaked inspection of property %d", insp.PropertyID)
		}
	}

	rec = doRequest(t, r, "GET", "/inspections?limit=1&offset=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("paged list status = %d", rec.Code)
	}
	decodeData(t, rec.Body.Bytes(), &listing)
	if len(listing.Items) != 1 {
		t.Errorf("paged list returned %d items, want 1", len(listing.Items))
	}

	if rec := doRequest(t, r, "GET", "/inspections?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
