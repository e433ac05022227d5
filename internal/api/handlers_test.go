package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/store"
)

const testPhone = "+15551230001"

type fakePublisher struct {
	inbound    []string // "from/body"
	publishErr error
}

func (f *fakePublisher) PublishInboundSMS(_ context.Context, phoneNumber, content string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.inbound = append(f.inbound, phoneNumber+"/"+content)
	return nil
}

func (f *fakePublisher) PublishStartDrill(context.Context, string, string) error {
	return errors.New("not used")
}

func (f *fakePublisher) PublishTriggerReminder(context.Context, string, uuid.UUID, string) error {
	return errors.New("not used")
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore, *fakePublisher) {
	t.Helper()
	st, err := store.NewSQLiteStore(
		store.WithSQLiteDSN(filepath.Join(t.TempDir(), "test.db")),
		store.WithDrillSlugs([]string{"basics"}),
	)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	pub := &fakePublisher{}
	return NewServer(":0", pub, st), st, pub
}

// seedUser projects a DrillStarted batch so the read endpoints have data.
func seedUser(t *testing.T, st *store.SQLiteStore) uuid.UUID {
	t.Helper()
	profile := dialog.UserProfile{Validated: true}
	e := dialog.NewDrillStarted(testPhone, profile, drills.Drill{
		Slug:    "basics",
		Name:    "Basics",
		Prompts: []drills.Prompt{{Slug: "q1", Messages: []drills.PromptMessage{{Text: "Question 1"}}}},
	})
	batch := dialog.NewEventBatch(testPhone, "1", []dialog.Event{e})
	userID, err := st.UpdateProgress(context.Background(), batch)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := st.UpdateInstances(context.Background(), userID, batch); err != nil {
		t.Fatalf("UpdateInstances: %v", err)
	}
	return *e.DrillInstanceID
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func postWebhook(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.webhookSMSHandler(rec, req)
	return rec
}

func TestWebhookSMSQueuesCommand(t *testing.T) {
	s, _, pub := newTestServer(t)

	rec := postWebhook(t, s, url.Values{"From": {" " + testPhone + " "}, "Body": {"hello"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %s, want text/xml", ct)
	}
	if rec.Body.String() != emptyTwiML {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(pub.inbound) != 1 || pub.inbound[0] != testPhone+"/hello" {
		t.Errorf("published = %v", pub.inbound)
	}
}

func TestWebhookSMSRejectsBadRequests(t *testing.T) {
	s, _, pub := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook/sms", nil)
	rec := httptest.NewRecorder()
	s.webhookSMSHandler(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	if rec := postWebhook(t, s, url.Values{"Body": {"hello"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing From status = %d, want 400", rec.Code)
	}
	if len(pub.inbound) != 0 {
		t.Errorf("bad requests were published: %v", pub.inbound)
	}
}

func TestWebhookSMSQueueFailure(t *testing.T) {
	s, _, pub := newTestServer(t)
	pub.publishErr = errors.New("queue down")

	rec := postWebhook(t, s, url.Values{"From": {testPhone}, "Body": {"hello"}})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestProgressHandler(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedUser(t, st)

	req := httptest.NewRequest(http.MethodGet, "/progress?phone="+url.QueryEscape(testPhone), nil)
	rec := httptest.NewRecorder()
	s.progressHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "ok" {
		t.Errorf("response status = %s", resp.Status)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T", resp.Result)
	}
	for _, key := range []string{"user_id", "progress", "drill_statuses"} {
		if _, ok := result[key]; !ok {
			t.Errorf("result missing %s", key)
		}
	}
}

func TestProgressHandlerErrors(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	rec := httptest.NewRecorder()
	s.progressHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing phone status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/progress?phone=%2B15550000000", nil)
	rec = httptest.NewRecorder()
	s.progressHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown phone status = %d, want 404", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != "error" || resp.Message == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestInstanceHandler(t *testing.T) {
	s, st, _ := newTestServer(t)
	instanceID := seedUser(t, st)

	req := httptest.NewRequest(http.MethodGet, "/instances/"+instanceID.String(), nil)
	rec := httptest.NewRecorder()
	s.instanceHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T", resp.Result)
	}
	if result["drill_slug"] != "basics" || result["current_prompt_slug"] != "q1" {
		t.Errorf("result = %+v", result)
	}
}

func TestInstanceHandlerErrors(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/instances/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	s.instanceHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/instances/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	s.instanceHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != "ok" {
		t.Errorf("response = %+v", resp)
	}
}
