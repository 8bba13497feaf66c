package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	expirationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/expiration"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
)

func TestCreateReturnsConflictForBusyReport(t *testing.T) {
	h, _ := newMatchesHandlerForTest(t)

	body := mustMarshal(t, map[string]any{
		"source_report_id": 10,
		"target_report_id": 20,
	})
	rr := doRequest(h.Create, http.MethodPost, "/v1/matches", body, true, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("first create: got %d want %d", rr.Code, http.StatusCreated)
	}

	// Same reports again: the active match blocks a second one.
	rr = doRequest(h.Create, http.MethodPost, "/v1/matches", mustMarshal(t, map[string]any{
		"source_report_id": 10,
		"target_report_id": 20,
	}), true, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("second create: got %d want %d", rr.Code, http.StatusConflict)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "MATCH_CONFLICT" {
		t.Fatalf("unexpected error code: %q", payload.Code)
	}
}

func TestCreateRequiresAuthentication(t *testing.T) {
	h, _ := newMatchesHandlerForTest(t)

	rr := doRequest(h.Create, http.MethodPost, "/v1/matches", mustMarshal(t, map[string]any{
		"source_report_id": 10,
		"target_report_id": 20,
	}), false, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestGetIncludesExpirationSnapshot(t *testing.T) {
	h, lifecycle := newMatchesHandlerForTest(t)

	rec, err := lifecycle.Create(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}

	rr := doRequest(h.Get, http.MethodGet, "/v1/matches/"+rec.ID, nil, true, rec.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var payload struct {
		Status     string `json:"status"`
		Expiration *struct {
			HoursRemaining int  `json:"hours_remaining"`
			Expired        bool `json:"expired"`
		} `json:"expiration"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != string(enums.MatchStatusConfirmed) {
		t.Fatalf("unexpected status: %q", payload.Status)
	}
	if payload.Expiration == nil {
		t.Fatalf("expected expiration snapshot for an active match")
	}
	if payload.Expiration.Expired || payload.Expiration.HoursRemaining != 48 {
		t.Fatalf("unexpected expiration snapshot: %+v", payload.Expiration)
	}
}

func TestUpdateStatusMapsInvalidTransition(t *testing.T) {
	h, lifecycle := newMatchesHandlerForTest(t)

	rec, err := lifecycle.Create(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}

	// confirmed -> resolved without both confirmations is rejected.
	rr := doRequest(h.UpdateStatus, http.MethodPost, "/v1/matches/"+rec.ID+"/status", mustMarshal(t, map[string]any{
		"status": "resolved",
	}), true, rec.ID)
	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusConflict)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "INVALID_TRANSITION" {
		t.Fatalf("unexpected error code: %q", payload.Code)
	}
}

func newMatchesHandlerForTest(t *testing.T) (*MatchesHandler, *lifecyclesvc.Service) {
	t.Helper()

	lifecycle := lifecyclesvc.NewService(lifecyclesvc.Dependencies{
		MatchStore:  newMemMatchStore(),
		ReportStore: memReportStore{},
		Rejections:  memRejectionSink{},
	}, lifecyclesvc.Config{AutoConfirm: true})

	expiration := expirationsvc.NewService(expirationsvc.Dependencies{}, expirationsvc.Config{Window: 48 * time.Hour})

	return NewMatchesHandler(lifecycle, expiration), lifecycle
}

func doRequest(handler http.HandlerFunc, method, target string, body []byte, authenticated bool, matchID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))

	ctx := req.Context()
	if authenticated {
		ctx = authsvc.WithIdentity(ctx, authsvc.Identity{UserID: 1001, Role: authsvc.RoleUser})
	}
	if matchID != "" {
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("id", matchID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func mustMarshal(t *testing.T, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	return body
}

type memMatchStore struct {
	records map[string]pgrepo.MatchRecord
}

func newMemMatchStore() *memMatchStore {
	return &memMatchStore{records: make(map[string]pgrepo.MatchRecord)}
}

func (m *memMatchStore) Insert(_ context.Context, rec pgrepo.MatchRecord) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memMatchStore) GetByID(_ context.Context, id string) (pgrepo.MatchRecord, bool, error) {
	rec, ok := m.records[id]
	return rec, ok, nil
}

func (m *memMatchStore) FindActiveByReportID(_ context.Context, reportID int64) (pgrepo.MatchRecord, bool, error) {
	for _, rec := range m.records {
		if rec.Status.IsTerminal() {
			continue
		}
		if rec.SourceReportID == reportID || rec.TargetReportID == reportID {
			return rec, true, nil
		}
	}
	return pgrepo.MatchRecord{}, false, nil
}

func (m *memMatchStore) TransitionStatus(_ context.Context, id string, from []enums.MatchStatus, to enums.MatchStatus, notes, rejectionReason string) (pgrepo.MatchRecord, bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return pgrepo.MatchRecord{}, false, nil
	}
	matched := false
	for _, status := range from {
		if rec.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return pgrepo.MatchRecord{}, false, nil
	}
	rec.Status = to
	if notes != "" {
		rec.Notes = notes
	}
	if rejectionReason != "" {
		rec.RejectionReason = rejectionReason
	}
	m.records[id] = rec
	return rec, true, nil
}

func (m *memMatchStore) SetHandoverFlag(_ context.Context, id string, role enums.HandoverRole) (pgrepo.MatchRecord, bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.Status.IsTerminal() {
		return pgrepo.MatchRecord{}, false, nil
	}
	if role == enums.HandoverRoleSource {
		rec.SourceConfirmed = true
	} else {
		rec.TargetConfirmed = true
	}
	m.records[id] = rec
	return rec, true, nil
}

func (m *memMatchStore) IncrementVerificationAttempts(_ context.Context, id string, max int) (pgrepo.MatchRecord, bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.Status.IsTerminal() || rec.VerificationAttempts >= max {
		return pgrepo.MatchRecord{}, false, nil
	}
	rec.VerificationAttempts++
	m.records[id] = rec
	return rec, true, nil
}

type memReportStore struct{}

func (memReportStore) GetByID(_ context.Context, id int64) (pgrepo.ReportRecord, bool, error) {
	switch id {
	case 10:
		return pgrepo.ReportRecord{ID: 10, Kind: enums.ReportKindLost, OwnerUserID: 1001, Status: enums.ReportStatusOpen}, true, nil
	case 20:
		return pgrepo.ReportRecord{ID: 20, Kind: enums.ReportKindFound, OwnerUserID: 2002, Status: enums.ReportStatusOpen}, true, nil
	default:
		return pgrepo.ReportRecord{}, false, nil
	}
}

type memRejectionSink struct{}

func (memRejectionSink) Record(context.Context, string, int64, string, string) error {
	return nil
}
