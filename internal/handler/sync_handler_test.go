package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"besiktning-sync-server/internal/middleware"
	"besiktning-sync-server/internal/repository"
	"besiktning-sync-server/internal/service"
)

func newSyncHandler(t *testing.T, maxOps int) *SyncHandler {
	t.Helper()

	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	entities := repository.NewEntityRepository()
	svc := service.NewSyncService(db, service.NewRegistry(entities), entities,
		repository.NewChangeLogRepository(), repository.NewSyncLogRepository(), service.SyncOptions{
			MaxOpsPerPush:    maxOps,
			DefaultPullLimit: 200,
			MaxPullLimit:     500,
			IdempotencyTTL:   24 * time.Hour,
			MinClientVersion: "1.0.0",
		})
	return NewSyncHandler(svc)
}

func authed(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func decodeError(t *testing.T, body string) (code, message string) {
	t.Helper()

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		t.Fatalf("decoding error envelope %q: %v", body, err)
	}
	return envelope.Error.Code, envelope.Error.Message
}

func TestSyncHandlerPushRequiresAuth(t *testing.T) {
	h := newSyncHandler(t, 500)

	req := httptest.NewRequest("POST", "/api/v1/sync/push", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Push(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSyncHandlerPushRequiresIdempotencyKey(t *testing.T) {
	h := newSyncHandler(t, 500)

	req := authed(httptest.NewRequest("POST", "/api/v1/sync/push",
		strings.NewReader(`{"device_id":"device-1","ops":[]}`)), 1)
	rec := httptest.NewRecorder()

	h.Push(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	code, message := decodeError(t, rec.Body.String())
	if code != "missing_header" {
		t.Errorf("error code = %q, want missing_header", code)
	}
	if !strings.Contains(message, IdempotencyKeyHeader) {
		t.Errorf("error message = %q, want mention of %s", message, IdempotencyKeyHeader)
	}
}

func TestSyncHandlerPushRejectsInvalidBody(t *testing.T) {
	h := newSyncHandler(t, 500)

	for _, body := range []string{`not json`, `{"ops":[]}`} {
		req := authed(httptest.NewRequest("POST", "/api/v1/sync/push", strings.NewReader(body)), 1)
		req.Header.Set(IdempotencyKeyHeader, "key-1")
		rec := httptest.NewRecorder()

		h.Push(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
			continue
		}
		if code, _ := decodeError(t, rec.Body.String()); code != "validation_error" {
			t.Errorf("body %q: error code = %q, want validation_error", body, code)
		}
	}
}

func TestSyncHandlerPushOversizeBatch(t *testing.T) {
	h := newSyncHandler(t, 2)

	body := `{"device_id":"device-1","ops":[` +
		`{"op_id":"1","entity_type":"property","action":"create"},` +
		`{"op_id":"2","entity_type":"property","action":"create"},` +
		`{"op_id":"3","entity_type":"property","action":"create"}]}`
	req := authed(httptest.NewRequest("POST", "/api/v1/sync/push", strings.NewReader(body)), 1)
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	rec := httptest.NewRecorder()

	h.Push(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if code, _ := decodeError(t, rec.Body.String()); code != "payload_too_large" {
		t.Errorf("error code = %q, want payload_too_large", code)
	}
}

func TestSyncHandlerPushPullRoundTrip(t *testing.T) {
	h := newSyncHandler(t, 500)

	pushBody := `{"device_id":"device-1","ops":[{` +
		`"op_id":"op-1","entity_type":"property","action":"create","client_id":"c-1",` +
		`"payload":{"property_type":"apartment_building","designation":"Kv Eken 1","address":"Storgatan 1"}}]}`
	req := authed(httptest.NewRequest("POST", "/api/v1/sync/push", strings.NewReader(pushBody)), 1)
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	rec := httptest.NewRecorder()

	h.Push(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var pushEnvelope struct {
		Data struct {
			AckedOpIDs   []string `json:"acked_op_ids"`
			ServerCursor string   `json:"server_cursor"`
		} `json:"data"`
		Meta struct {
			ServerTime time.Time `json:"server_time"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pushEnvelope); err != nil {
		t.Fatalf("decoding push envelope: %v", err)
	}
	if len(pushEnvelope.Data.AckedOpIDs) != 1 {
		t.Errorf("acked = %v", pushEnvelope.Data.AckedOpIDs)
	}
	if pushEnvelope.Data.ServerCursor == "" {
		t.Error("push returned no server_cursor")
	}
	if pushEnvelope.Meta.ServerTime.IsZero() {
		t.Error("envelope meta has no server_time")
	}

	pullReq := authed(httptest.NewRequest("GET", "/api/v1/sync/pull?since=&limit=10", nil), 1)
	pullRec := httptest.NewRecorder()

	h.Pull(pullRec, pullReq)

	if pullRec.Code != http.StatusOK {
		t.Fatalf("pull status = %d, body = %s", pullRec.Code, pullRec.Body.String())
	}

	var pullEnvelope struct {
		Data struct {
			Changes []struct {
				ChangeID   string `json:"change_id"`
				EntityType string `json:"entity_type"`
				Action     string `json:"action"`
			} `json:"changes"`
			NextCursor string `json:"next_cursor"`
			HasMore    bool   `json:"has_more"`
		} `json:"data"`
	}
	if err := json.Unmarshal(pullRec.Body.Bytes(), &pullEnvelope); err != nil {
		t.Fatalf("decoding pull envelope: %v", err)
	}
	if len(pullEnvelope.Data.Changes) != 1 {
		t.Fatalf("pull changes = %+v", pullEnvelope.Data.Changes)
	}
	change := pullEnvelope.Data.Changes[0]
	if change.EntityType != "property" || change.Action != "create" {
		t.Errorf("change = %+v", change)
	}
	if pullEnvelope.Data.NextCursor != pushEnvelope.Data.ServerCursor {
		t.Errorf("pull next_cursor = %q, push server_cursor = %q",
			pullEnvelope.Data.NextCursor, pushEnvelope.Data.ServerCursor)
	}
}

func TestSyncHandlerPushReplayIsByteIdentical(t *testing.T) {
	h := newSyncHandler(t, 500)

	body := `{"device_id":"device-1","ops":[{` +
		`"op_id":"op-1","entity_type":"property","action":"create","client_id":"c-1",` +
		`"payload":{"property_type":"apartment_building","designation":"Kv Eken 1","address":"Storgatan 1"}}]}`

	send := func() *httptest.ResponseRecorder {
		req := authed(httptest.NewRequest("POST", "/api/v1/sync/push", strings.NewReader(body)), 1)
		req.Header.Set(IdempotencyKeyHeader, "key-1")
		rec := httptest.NewRecorder()
		h.Push(rec, req)
		return rec
	}

	first := send()
	second := send()

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}

	var a, b struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decoding first reply: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decoding second reply: %v", err)
	}
	if string(a.Data) != string(b.Data) {
		t.Errorf("replay data differs:\nfirst  = %s\nsecond = %s", a.Data, b.Data)
	}
}

func TestSyncHandlerPullRejectsBadLimit(t *testing.T) {
	h := newSyncHandler(t, 500)

	req := authed(httptest.NewRequest("GET", "/api/v1/sync/pull?limit=abc", nil), 1)
	rec := httptest.NewRecorder()

	h.Pull(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSyncHandlerHandshake(t *testing.T) {
	h := newSyncHandler(t, 500)

	req := authed(httptest.NewRequest("GET", "/api/v1/sync/handshake", nil), 1)
	rec := httptest.NewRecorder()

	h.Handshake(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var envelope struct {
		Data struct {
			ServerTime            time.Time `json:"server_time"`
			MinClientVersion      string    `json:"min_client_version"`
			ConflictPolicyDefault string    `json:"conflict_policy_default"`
			MaxOpsPerPush         int       `json:"max_ops_per_push"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding handshake: %v", err)
	}
	if envelope.Data.ServerTime.IsZero() {
		t.Error("handshake server_time is zero")
	}
	if envelope.Data.MinClientVersion != "1.0.0" {
		t.Errorf("min_client_version = %q", envelope.Data.MinClientVersion)
	}
	if envelope.Data.ConflictPolicyDefault != "LWW" {
		t.Errorf("conflict_policy_default = %q", envelope.Data.ConflictPolicyDefault)
	}
	if envelope.Data.MaxOpsPerPush != 500 {
		t.Errorf("max_ops_per_push = %d", envelope.Data.MaxOpsPerPush)
	}
}
