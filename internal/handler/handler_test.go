package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/internal/middleware"
	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/service"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// --- Fakes ---

type fakeState struct {
	states   map[string]*model.UserState
	advanced []string
	catalog  *vendetta.Catalog
}

func (f *fakeState) Advance(_ context.Context, userID string) (*model.UserState, error) {
	f.advanced = append(f.advanced, userID)
	st, ok := f.states[userID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return st, nil
}

func (f *fakeState) Catalog() *vendetta.Catalog { return f.catalog }

type fakeActions struct {
	calls   []string
	err     error
	mission service.MissionRequest
}

func (f *fakeActions) SubmitConstruction(_ context.Context, userID, propertyID, roomID string) (*model.ConstructionEntry, error) {
	f.calls = append(f.calls, "construct:"+userID+":"+propertyID+":"+roomID)
	if f.err != nil {
		return nil, f.err
	}
	return &model.ConstructionEntry{ID: "c-1", PropertyID: propertyID, RoomID: roomID, TargetLevel: 1, Seq: 1}, nil
}

func (f *fakeActions) CancelConstruction(_ context.Context, userID, entryID string) error {
	f.calls = append(f.calls, "cancel:"+userID+":"+entryID)
	return f.err
}

func (f *fakeActions) SubmitRecruitment(_ context.Context, userID, propertyID, troopID string, qty int64) (*model.RecruitmentEntry, error) {
	f.calls = append(f.calls, "recruit:"+userID+":"+propertyID+":"+troopID)
	if f.err != nil {
		return nil, f.err
	}
	return &model.RecruitmentEntry{ID: "r-1", PropertyID: propertyID, TroopID: troopID, Quantity: qty}, nil
}

func (f *fakeActions) SubmitTraining(_ context.Context, userID, propertyID, trainingID string) (*model.TrainingEntry, error) {
	f.calls = append(f.calls, "train:"+userID+":"+propertyID+":"+trainingID)
	if f.err != nil {
		return nil, f.err
	}
	return &model.TrainingEntry{ID: "t-1", UserID: userID, PropertyID: propertyID, TrainingID: trainingID, TargetLevel: 1}, nil
}

func (f *fakeActions) SendMission(_ context.Context, userID string, req service.MissionRequest) (*model.Mission, error) {
	f.calls = append(f.calls, "send:"+userID)
	f.mission = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.Mission{ID: "m-1", UserID: userID, Type: req.Type, Target: req.Target, Troops: req.Troops}, nil
}

func (f *fakeActions) CancelMission(_ context.Context, userID, missionID string) (*model.Mission, error) {
	f.calls = append(f.calls, "recall:"+userID+":"+missionID)
	if f.err != nil {
		return nil, f.err
	}
	back := time.Now()
	return &model.Mission{ID: missionID, UserID: userID, Type: vendetta.MissionReturn, ReturnsAt: &back}, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	upserts []string
	err     error
}

func (f *fakeUsers) Upsert(_ context.Context, id, displayName string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, id)
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: id, DisplayName: displayName}, nil
}

type fakeSweeper struct {
	res   service.SweepResult
	calls int
}

func (f *fakeSweeper) AdvanceAll(context.Context) (service.SweepResult, error) {
	f.calls++
	return f.res, nil
}

type fakeReports struct {
	battles   []model.BattleReport
	espionage []model.EspionageReport
	messages  []model.Message
}

func (f *fakeReports) ListBattleReports(_ context.Context, userID string, limit int) ([]model.BattleReport, error) {
	var out []model.BattleReport
	for _, r := range f.battles {
		if r.AttackerUserID == userID || r.DefenderUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReports) FindBattleReport(_ context.Context, id string) (*model.BattleReport, error) {
	for i := range f.battles {
		if f.battles[i].ID == id {
			return &f.battles[i], nil
		}
	}
	return nil, nil
}

func (f *fakeReports) ListEspionageReports(_ context.Context, userID string, limit int) ([]model.EspionageReport, error) {
	return f.espionage, nil
}

func (f *fakeReports) ListByUser(_ context.Context, userID string, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- Test server ---

const (
	testJWTSecret  = "test-secret"
	testCronSecret = "cron-secret"
)

type testServer struct {
	mux     http.Handler
	jwt     *auth.JWTManager
	state   *fakeState
	actions *fakeActions
	sweeper *fakeSweeper
	reports *fakeReports
	users   *fakeUsers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		jwt: auth.NewJWTManager(testJWTSecret),
		state: &fakeState{
			states:  map[string]*model.UserState{"user-1": {User: model.User{ID: "user-1", DisplayName: "Vito"}}},
			catalog: vendetta.DefaultCatalog(),
		},
		actions: &fakeActions{},
		sweeper: &fakeSweeper{res: service.SweepResult{Users: 3, Updated: 2, Failed: 1}},
		reports: &fakeReports{},
		users:   &fakeUsers{},
	}
	rt := &Routes{
		State:      NewStateHandler(ts.state),
		Actions:    NewActionHandler(ts.actions),
		Reports:    NewReportHandler(ts.reports, ts.reports),
		Cron:       NewCronHandler(ts.sweeper),
		Simulate:   NewSimulateHandler(service.NewSimulator(vendetta.DefaultCatalog())),
		Health:     Health(map[string]Pinger{"db": PingFunc(func(context.Context) error { return nil })}),
		JWT:        ts.jwt,
		CronSecret: testCronSecret,
		Limiter:    middleware.NewRateLimiter(0, 1),
		Users:      ts.users,
	}
	ts.mux = rt.Mux()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		token, err := ts.jwt.GenerateAccessToken(userID)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestGetStateAdvancesUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/state", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st model.UserState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.User.DisplayName != "Vito" {
		t.Errorf("unexpected state: %+v", st.User)
	}
	if len(ts.state.advanced) != 1 || ts.state.advanced[0] != "user-1" {
		t.Errorf("expected one advance for user-1, got %v", ts.state.advanced)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/state", "ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", rec.Code)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/state", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestFirstRequestRegistersUser(t *testing.T) {
	ts := newTestServer(t)
	for range 3 {
		ts.do(t, http.MethodGet, "/api/v1/state", "user-1", "")
	}
	ts.do(t, http.MethodGet, "/api/v1/catalog", "user-2", "")
	ts.do(t, http.MethodGet, "/api/v1/state", "", "")

	if got := strings.Join(ts.users.upserts, ","); got != "user-1,user-2" {
		t.Errorf("expected one upsert per user, got %q", got)
	}
}

func TestRegistrationFailureRetries(t *testing.T) {
	ts := newTestServer(t)
	ts.users.err = errors.New("db down")
	if rec := ts.do(t, http.MethodGet, "/api/v1/state", "user-1", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 while registration fails, got %d", rec.Code)
	}
	if len(ts.state.advanced) != 0 {
		t.Errorf("handler ran after a failed registration: %v", ts.state.advanced)
	}

	ts.users.err = nil
	if rec := ts.do(t, http.MethodGet, "/api/v1/state", "user-1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once registration works, got %d", rec.Code)
	}
	if len(ts.users.upserts) != 2 {
		t.Errorf("expected the failed registration to be retried, got %v", ts.users.upserts)
	}
}

func TestGetCatalog(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/catalog", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Rooms  []vendetta.RoomConfig  `json:"rooms"`
		Troops []vendetta.TroopConfig `json:"troops"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rooms) == 0 || len(body.Troops) == 0 {
		t.Errorf("catalog should list rooms and troops: %d, %d", len(body.Rooms), len(body.Troops))
	}
	if body.Rooms[0].ID != ts.state.catalog.RoomIDs()[0] {
		t.Errorf("rooms should keep catalog order, got %s first", body.Rooms[0].ID)
	}
}

func TestSubmitConstructionHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/properties/p-1/constructions", "user-1", `{"roomId":"armeria"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.actions.calls) != 1 || ts.actions.calls[0] != "construct:user-1:p-1:armeria" {
		t.Errorf("calls: %v", ts.actions.calls)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/properties/p-1/constructions", "user-1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing roomId: expected 400, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/properties/p-1/constructions", "user-1", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}
}

func TestActionErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"queue busy", service.ErrQueueBusy, http.MethodPost, "/api/v1/properties/p-1/recruitments",
			`{"troopId":"maton","quantity":5}`, http.StatusConflict},
		{"not owner", service.ErrNotOwner, http.MethodPost, "/api/v1/properties/p-9/trainings",
			`{"trainingId":"rutas"}`, http.StatusForbidden},
		{"poor", service.ErrInsufficientResources, http.MethodPost, "/api/v1/properties/p-1/constructions",
			`{"roomId":"armeria"}`, http.StatusUnprocessableEntity},
		{"started", service.ErrAlreadyStarted, http.MethodDelete, "/api/v1/constructions/c-1", "", http.StatusConflict},
		{"arrived", service.ErrMissionArrived, http.MethodPost, "/api/v1/missions/m-1/cancel", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.actions.err = tt.err
			rec := ts.do(t, tt.method, tt.path, "user-1", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestQueueBusyMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.actions.err = service.ErrQueueBusy
	rec := ts.do(t, http.MethodPost, "/api/v1/properties/p-1/recruitments", "user-1", `{"troopId":"maton","quantity":5}`)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Cola ocupada" {
		t.Errorf("expected Cola ocupada, got %q", body["error"])
	}
}

func TestCancelConstructionHandler(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/api/v1/constructions/c-7", "user-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if ts.actions.calls[0] != "cancel:user-1:c-7" {
		t.Errorf("calls: %v", ts.actions.calls)
	}
}

func TestSendMissionHandler(t *testing.T) {
	ts := newTestServer(t)
	body := `{
		"originPropertyId": "p-1",
		"target": {"ciudad": 1, "barrio": 2, "edificio": 3},
		"type": "ATAQUE",
		"troops": [{"id": "maton", "cantidad": 40}]
	}`
	rec := ts.do(t, http.MethodPost, "/api/v1/missions", "user-1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	req := ts.actions.mission
	if req.Type != vendetta.MissionAttack || req.Target != (vendetta.Coords{Ciudad: 1, Barrio: 2, Edificio: 3}) {
		t.Errorf("decoded request: %+v", req)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/missions", "user-1", `{"type":"ATAQUE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing origin: expected 400, got %d", rec.Code)
	}
}

func TestCancelMissionHandler(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/missions/m-3/cancel", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var m model.Mission
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != vendetta.MissionReturn || m.ReturnsAt == nil {
		t.Errorf("mission: %+v", m)
	}
}

func TestReportsAreScopedToParticipants(t *testing.T) {
	ts := newTestServer(t)
	ts.reports.battles = []model.BattleReport{
		{ID: "b-1", AttackerUserID: "user-1", DefenderUserID: "user-2", Winner: "attacker"},
		{ID: "b-2", AttackerUserID: "user-3", DefenderUserID: "user-4", Winner: "defender"},
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/reports/battles", "user-2", "")
	var list []model.BattleReport
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "b-1" {
		t.Errorf("defender should see b-1 only: %+v", list)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/reports/battles/b-1", "user-2", ""); rec.Code != http.StatusOK {
		t.Errorf("participant: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/reports/battles/b-2", "user-2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("outsider: expected 404, got %d", rec.Code)
	}
}

func TestListEndpointsReturnArrays(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/v1/reports/battles", "/api/v1/reports/espionage", "/api/v1/messages"} {
		rec := ts.do(t, http.MethodGet, path, "user-1", "")
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s: expected [], got %s", path, got)
		}
	}
}

func TestCronAdvance(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/advance", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res service.SweepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res != (service.SweepResult{Users: 3, Updated: 2, Failed: 1}) {
		t.Errorf("result: %+v", res)
	}

	for _, header := range []string{"", "Bearer wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/advance", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		ts.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if ts.sweeper.calls != 1 {
		t.Errorf("sweeper should run once, ran %d times", ts.sweeper.calls)
	}

	// A player token is not a cron secret.
	if rec := ts.do(t, http.MethodPost, "/api/v1/cron/advance", "user-1", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("player token: expected 401, got %d", rec.Code)
	}
}

func TestSimulateHandler(t *testing.T) {
	ts := newTestServer(t)
	body := `{
		"attacker": {"troops": [{"id": "maton", "cantidad": 100}]},
		"defender": {"troops": [{"id": "portero", "cantidad": 10}]}
	}`
	rec := ts.do(t, http.MethodPost, "/api/v1/simulate", "user-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report vendetta.BattleReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Winner == "" || len(report.Rounds) == 0 {
		t.Errorf("report: %+v", report)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/simulate", "user-1", `{"attacker":{"troops":[{"id":"ghost","cantidad":1}]}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown troop: expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	failing := Health(map[string]Pinger{"redis": PingFunc(func(context.Context) error { return errors.New("refused") })})
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "refused") {
		t.Errorf("body should name the failing check: %s", rec.Body.String())
	}
}
