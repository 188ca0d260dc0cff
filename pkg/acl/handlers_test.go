package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cccs-paul/rcbudget/pkg/observability"
)

func setupTestHandlers(t *testing.T) (*mux.Router, *Engine, *testFixture) {
	t.Helper()

	db := setupTestDB(t)
	e := newTestEngine(t, db, nil)
	h := NewHandlers(e, observability.NewLogger(observability.ErrorLevel, io.Discard))

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	aliceID := createTestUser(t, db, "alice", "Alice Chan")
	createTestUser(t, db, "bob", "Bob Tremblay")
	centreID := createTestCentre(t, db, "Operations", aliceID)

	return router, e, &testFixture{centreID: centreID}
}

type testFixture struct {
	centreID int64
}

func doRequest(router *mux.Router, method, path, requester string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if requester != "" {
		req = req.WithContext(observability.WithRequester(req.Context(), requester))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlersGrantUserAccess(t *testing.T) {
	router, _, fx := setupTestHandlers(t)

	rec := doRequest(router, "POST", fmt.Sprintf("/centres/%d/permissions/users", fx.centreID), "alice",
		map[string]string{"identifier": "bob", "access_level": "READ_WRITE"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var grant Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if grant.Level != LevelReadWrite || grant.PrincipalIdentifier != "bob" {
		t.Errorf("Unexpected grant in response: %+v", grant)
	}
}

func TestHandlersDuplicateGrantMapsToConflict(t *testing.T) {
	router, _, fx := setupTestHandlers(t)

	path := fmt.Sprintf("/centres/%d/permissions/users", fx.centreID)
	body := map[string]string{"identifier": "bob", "access_level": "READ_WRITE"}

	if rec := doRequest(router, "POST", path, "alice", body); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	rec := doRequest(router, "POST", path, "alice", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate grant, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlersNonOwnerMapsToForbidden(t *testing.T) {
	router, _, fx := setupTestHandlers(t)

	rec := doRequest(router, "POST", fmt.Sprintf("/centres/%d/permissions/users", fx.centreID), "bob",
		map[string]string{"identifier": "alice", "access_level": "READ_ONLY"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlersMissingRequesterMapsToUnauthorized(t *testing.T) {
	router, _, fx := setupTestHandlers(t)

	rec := doRequest(router, "GET", fmt.Sprintf("/centres/%d/permissions", fx.centreID), "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
}

func TestHandlersInvalidCentreID(t *testing.T) {
	router, _, _ := setupTestHandlers(t)

	rec := doRequest(router, "GET", "/centres/not-a-number/permissions", "alice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestHandlersListPermissions(t *testing.T) {
	router, e, fx := setupTestHandlers(t)

	if _, err := e.GrantUserAccess(context.Background(), fx.centreID, "alice", "bob", LevelReadOnly); err != nil {
		t.Fatalf("GrantUserAccess failed: %v", err)
	}

	rec := doRequest(router, "GET", fmt.Sprintf("/centres/%d/permissions", fx.centreID), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Permissions []Grant `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Permissions) != 2 {
		t.Fatalf("Expected owner entry plus one grant, got %d entries", len(resp.Permissions))
	}
	if resp.Permissions[0].Level != LevelOwner {
		t.Errorf("Expected first entry to be the owner at OWNER, got %s", resp.Permissions[0].Level)
	}
}

func TestHandlersEffectiveAccess(t *testing.T) {
	router, e, fx := setupTestHandlers(t)

	if _, err := e.GrantGroupAccess(context.Background(), fx.centreID, "alice", "finance-team", "", PrincipalGroup, LevelReadWrite); err != nil {
		t.Fatalf("GrantGroupAccess failed: %v", err)
	}

	rec := doRequest(router, "GET", fmt.Sprintf("/centres/%d/access?groups=finance-team,ops-team", fx.centreID), "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		HasAccess   bool        `json:"has_access"`
		AccessLevel AccessLevel `json:"access_level"`
		CanEdit     bool        `json:"can_edit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.HasAccess || resp.AccessLevel != LevelReadWrite || !resp.CanEdit {
		t.Errorf("Unexpected access response: %+v", resp)
	}
}

func TestHandlersUpdateAndRevoke(t *testing.T) {
	router, e, fx := setupTestHandlers(t)

	grant, err := e.GrantUserAccess(context.Background(), fx.centreID, "alice", "bob", LevelReadWrite)
	if err != nil {
		t.Fatalf("GrantUserAccess failed: %v", err)
	}

	rec := doRequest(router, "PUT", fmt.Sprintf("/permissions/%d", grant.ID), "alice",
		map[string]string{"access_level": "READ_ONLY"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if updated.Level != LevelReadOnly {
		t.Errorf("Expected READ_ONLY, got %s", updated.Level)
	}

	rec = doRequest(router, "DELETE", fmt.Sprintf("/permissions/%d", grant.ID), "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	rec = doRequest(router, "DELETE", fmt.Sprintf("/permissions/%d", grant.ID), "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 revoking twice, got %d", rec.Code)
	}
}

func TestHandlersUpdateMissingGrantMapsToNotFound(t *testing.T) {
	router, _, _ := setupTestHandlers(t)

	rec := doRequest(router, "PUT", "/permissions/9999", "alice",
		map[string]string{"access_level": "READ_ONLY"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
