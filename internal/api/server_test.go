package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dealyard/internal/contractlog"
	"github.com/zulandar/dealyard/internal/db"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/models"
	"github.com/zulandar/dealyard/internal/notify"
	"github.com/zulandar/dealyard/internal/offer"
	"github.com/zulandar/dealyard/internal/step"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	rec    *notify.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	rec := &notify.Recorder{}
	router, err := NewRouter(StartOpts{DB: gdb, Secret: testSecret, Notifier: rec})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &testServer{t: t, db: gdb, router: router, rec: rec}
}

// do sends a request as user (no Authorization header when user is empty)
// and decodes the response into out when out is non-nil.
func (s *testServer) do(method, path, user string, body any, out any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, _, err := identity.IssueToken(user, testSecret, time.Hour)
		if err != nil {
			s.t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("decode %s %s response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w
}

type errorResponse struct {
	Error   errorDetail     `json:"error"`
	Current json.RawMessage `json:"current"`
}

func TestNewRouter_RequiresDBAndSecret(t *testing.T) {
	if _, err := NewRouter(StartOpts{Secret: "x"}); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("nil db: err = %v", err)
	}
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if _, err := NewRouter(StartOpts{DB: gdb}); err == nil || !strings.Contains(err.Error(), "secret is required") {
		t.Errorf("no secret: err = %v", err)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, StartOpts{DB: gdb, Secret: testSecret, Port: 18000 + int(time.Now().UnixNano()%1000)})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/healthz", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want req-123", got)
	}
}

func TestAuth_Required(t *testing.T) {
	s := newTestServer(t)
	var resp errorResponse
	w := s.do(http.MethodGet, "/proposals", "", nil, &resp)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if resp.Error.Kind != "unauthorized" {
		t.Errorf("kind = %q, want unauthorized", resp.Error.Kind)
	}

	req := httptest.NewRequest(http.MethodGet, "/proposals", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestCreateProposal_Errors(t *testing.T) {
	s := newTestServer(t)

	var resp errorResponse
	w := s.do(http.MethodPost, "/proposals", "alice", map[string]any{"counterpart_id": "bob"}, &resp)
	if w.Code != http.StatusBadRequest || resp.Error.Kind != "validation" {
		t.Errorf("missing subject: %d %+v", w.Code, resp.Error)
	}

	w = s.do(http.MethodGet, "/proposals/prp-missing", "alice", nil, &resp)
	if w.Code != http.StatusNotFound || resp.Error.Kind != "not_found" {
		t.Errorf("missing proposal: %d %+v", w.Code, resp.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/proposals", strings.NewReader("{"))
	token, _, _ := identity.IssueToken("alice", testSecret, time.Hour)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed json: status = %d, want 400", rec.Code)
	}
}

// TestLifecycle walks a proposal from creation to a completed contract over
// HTTP.
func TestLifecycle(t *testing.T) {
	s := newTestServer(t)

	var p models.Proposal
	w := s.do(http.MethodPost, "/proposals", "alice", map[string]any{
		"subject_id":     "tech-7",
		"counterpart_id": "bob",
		"title":          "License for sensor patent",
		"currency":       "usd",
	}, &p)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", w.Code, w.Body.String())
	}
	if p.Currency != "USD" || p.Status != models.ProposalPending {
		t.Errorf("proposal = %+v", p)
	}

	var m1, m2 models.NegotiatingMessage
	if w := s.do(http.MethodPost, "/proposals/"+p.ID+"/messages", "bob", map[string]any{
		"body": "Opening offer", "offer": map[string]any{"amount": 10000},
	}, &m1); w.Code != http.StatusCreated {
		t.Fatalf("post O1: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(http.MethodPost, "/proposals/"+p.ID+"/messages", "bob", map[string]any{
		"body": "Revised", "offer": map[string]any{"amount": 12000},
	}, &m2); w.Code != http.StatusCreated {
		t.Fatalf("post O2: %d %s", w.Code, w.Body.String())
	}
	if m1.OfferID == nil || m2.OfferID == nil || m2.Seq != 2 {
		t.Fatalf("messages = %+v / %+v", m1, m2)
	}

	var thread []models.NegotiatingMessage
	s.do(http.MethodGet, "/proposals/"+p.ID+"/messages", "alice", nil, &thread)
	if len(thread) != 2 || thread[0].Offer == nil || thread[0].Offer.Amount != 10000 {
		t.Errorf("thread = %+v", thread)
	}

	// The author cannot accept their own offer.
	var denied errorResponse
	if w := s.do(http.MethodPost, "/offers/"+*m2.OfferID+"/accept", "bob", nil, &denied); w.Code != http.StatusForbidden {
		t.Errorf("self accept: status = %d, want 403", w.Code)
	}

	var accepted offer.Result
	if w := s.do(http.MethodPost, "/offers/"+*m2.OfferID+"/accept", "alice", nil, &accepted); w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	if accepted.Contract == nil || len(accepted.Contract.Steps) != 3 {
		t.Fatalf("contract = %+v", accepted.Contract)
	}
	contractID := accepted.Contract.ID

	var dup errorResponse
	w = s.do(http.MethodPost, "/offers/"+*m1.OfferID+"/accept", "alice", nil, &dup)
	if w.Code != http.StatusConflict || dup.Error.Kind != "duplicate_acceptance" {
		t.Errorf("second accept: %d %+v", w.Code, dup.Error)
	}
	if len(dup.Current) == 0 {
		t.Error("second accept: missing current entity")
	}

	var offers []models.Offer
	s.do(http.MethodGet, "/proposals/"+p.ID+"/offers", "alice", nil, &offers)
	statuses := map[string]models.OfferStatus{}
	for _, o := range offers {
		statuses[o.ID] = o.Status
	}
	if statuses[*m1.OfferID] != models.OfferRejected || statuses[*m2.OfferID] != models.OfferAccepted {
		t.Errorf("offer statuses = %v", statuses)
	}

	// Completion is refused until every step is approved.
	var early errorResponse
	w = s.do(http.MethodPost, "/logs", "alice", map[string]any{
		"contract_id": contractID, "content": "done", "is_done_contract": true,
	}, &early)
	if w.Code != http.StatusConflict || early.Error.Kind != "invalid_transition" {
		t.Errorf("early done: %d %+v", w.Code, early.Error)
	}

	for _, st := range accepted.Contract.Steps {
		for _, user := range []string{"alice", "bob"} {
			var res step.Result
			if w := s.do(http.MethodPost, "/steps/"+st.ID+"/approvals", user, map[string]any{"decision": "approved"}, &res); w.Code != http.StatusOK {
				t.Fatalf("%s approve %s: %d %s", user, st.Kind, w.Code, w.Body.String())
			}
		}
	}

	var done contractlog.Result
	w = s.do(http.MethodPost, "/logs", "bob", map[string]any{
		"contract_id": contractID, "content": "All delivered", "is_done_contract": true,
	}, &done)
	if w.Code != http.StatusCreated {
		t.Fatalf("done: %d %s", w.Code, w.Body.String())
	}
	if done.Contract.Status != models.ContractCompleted || done.Proposal.Status != models.ProposalCompleted {
		t.Errorf("final = %s/%s, want completed/completed", done.Contract.Status, done.Proposal.Status)
	}

	var shown models.Contract
	s.do(http.MethodGet, "/contracts/"+contractID, "alice", nil, &shown)
	if shown.Status != models.ContractCompleted || len(shown.Steps) != 3 || len(shown.Steps[0].Approvals) != 2 {
		t.Errorf("contract = %+v", shown)
	}
	if w := s.do(http.MethodGet, "/contracts/"+contractID, "mallory", nil, nil); w.Code != http.StatusForbidden {
		t.Errorf("stranger show: status = %d, want 403", w.Code)
	}

	var logs []models.ContractLog
	s.do(http.MethodGet, "/contracts/"+contractID+"/logs", "alice", nil, &logs)
	if len(logs) != 1 || !logs[0].IsDoneContract {
		t.Errorf("logs = %+v", logs)
	}

	// Audit logs follow the same read policy as the contract itself.
	var hidden errorResponse
	if w := s.do(http.MethodGet, "/contracts/"+contractID+"/logs", "mallory", nil, &hidden); w.Code != http.StatusForbidden || hidden.Error.Kind != "unauthorized" {
		t.Errorf("stranger contract logs: %d %+v", w.Code, hidden.Error)
	}
	if w := s.do(http.MethodGet, "/proposals/"+p.ID+"/logs", "mallory", nil, nil); w.Code != http.StatusForbidden {
		t.Errorf("stranger proposal logs: status = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodGet, "/proposals/"+p.ID+"/logs", "bob", nil, nil); w.Code != http.StatusOK {
		t.Errorf("party proposal logs: status = %d, want 200", w.Code)
	}
	if w := s.do(http.MethodGet, "/contracts/ctr-missing/logs", "alice", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing contract logs: status = %d, want 404", w.Code)
	}

	var mine []models.Contract
	s.do(http.MethodGet, "/contracts?status=completed", "bob", nil, &mine)
	if len(mine) != 1 {
		t.Errorf("bob's completed contracts = %d, want 1", len(mine))
	}
}

func TestTransitionProposal_ReturnsCurrentOnError(t *testing.T) {
	s := newTestServer(t)
	var p models.Proposal
	s.do(http.MethodPost, "/proposals", "alice", map[string]any{"subject_id": "proj-2", "kind": "project", "counterpart_id": "bob"}, &p)

	var resp errorResponse
	w := s.do(http.MethodPost, "/proposals/"+p.ID+"/transition", "alice", map[string]any{"status": "completed"}, &resp)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var cur models.Proposal
	if err := json.Unmarshal(resp.Current, &cur); err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if cur.ID != p.ID || cur.Status != models.ProposalPending {
		t.Errorf("current = %+v", cur)
	}

	var cancelled models.Proposal
	if w := s.do(http.MethodPost, "/proposals/"+p.ID+"/transition", "bob", map[string]any{"status": "cancelled"}, &cancelled); w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	if cancelled.Status != models.ProposalCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
}

func TestNotifications_Inbox(t *testing.T) {
	s := newTestServer(t)
	outbox := notify.OutboxSink{DB: s.db}
	if err := outbox.Deliver(context.Background(), notify.Event{Kind: notify.StepReminder, Recipient: "alice", Subject: "Step 1 awaits"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	var inbox []models.Notification
	s.do(http.MethodGet, "/notifications", "alice", nil, &inbox)
	if len(inbox) != 1 {
		t.Fatalf("inbox = %d, want 1", len(inbox))
	}
	id := inbox[0].ID

	if w := s.do(http.MethodPost, "/notifications/"+itoa(id)+"/seen", "bob", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", w.Code)
	}
	if w := s.do(http.MethodPost, "/notifications/"+itoa(id)+"/seen", "alice", nil, nil); w.Code != http.StatusNoContent {
		t.Errorf("mark seen: status = %d, want 204", w.Code)
	}
	inbox = nil
	s.do(http.MethodGet, "/notifications", "alice", nil, &inbox)
	if len(inbox) != 0 {
		t.Errorf("inbox after seen = %d, want 0", len(inbox))
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
