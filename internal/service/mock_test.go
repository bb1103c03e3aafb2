package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// memWorld is the whole persisted state of the fake store.
type memWorld struct {
	Users         map[string]*model.User
	Props         map[string]*model.Property
	Rooms         map[string]map[string]int
	Off           map[string]map[string]int64
	Sec           map[string]map[string]int64
	Levels        map[string]map[string]int
	Constructions map[string]*model.ConstructionEntry
	Recruitments  map[string]*model.RecruitmentEntry
	Trainings     map[string]*model.TrainingEntry
	Missions      map[string]*model.Mission
	Incoming      map[string]*model.IncomingAttack
	Battles       []model.BattleReport
	Espionage     []model.EspionageReport
	Messages      []model.Message
	Honor         map[string]int64
	Scores        map[string]*model.Score
}

func newWorld() *memWorld {
	return &memWorld{
		Users:         map[string]*model.User{},
		Props:         map[string]*model.Property{},
		Rooms:         map[string]map[string]int{},
		Off:           map[string]map[string]int64{},
		Sec:           map[string]map[string]int64{},
		Levels:        map[string]map[string]int{},
		Constructions: map[string]*model.ConstructionEntry{},
		Recruitments:  map[string]*model.RecruitmentEntry{},
		Trainings:     map[string]*model.TrainingEntry{},
		Missions:      map[string]*model.Mission{},
		Incoming:      map[string]*model.IncomingAttack{},
		Honor:         map[string]int64{},
		Scores:        map[string]*model.Score{},
	}
}

func (w *memWorld) clone() *memWorld {
	b, err := json.Marshal(w)
	if err != nil {
		panic(err)
	}
	out := newWorld()
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

// mockStore implements repository.GameStore. Each transaction works on a copy
// of the world that replaces it only on commit.
type mockStore struct {
	mu sync.Mutex
	w  *memWorld

	failLoad    map[string]bool
	failMission map[string]bool
	txCount     int
	// racedTrainings were committed by a concurrent transaction: reads miss
	// them but InsertTraining still hits their unique keys.
	racedTrainings []model.TrainingEntry
}

func newMockStore() *mockStore {
	return &mockStore{w: newWorld(), failLoad: map[string]bool{}, failMission: map[string]bool{}}
}

func (s *mockStore) RunInTx(_ context.Context, fn func(tx repository.GameTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	tx := &mockTx{w: s.w.clone(), store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.w = tx.w
	return nil
}

// world returns a copy of the committed state for assertions.
func (s *mockStore) world() *memWorld {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.clone()
}

// seed mutates the committed state directly.
func (s *mockStore) seed(fn func(w *memWorld)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.w)
}

func copyInts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func (s *mockStore) LoadUserState(_ context.Context, userID string) (*model.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad[userID] {
		return nil, fmt.Errorf("load %s: connection reset", userID)
	}
	w := s.w.clone()
	u, ok := w.Users[userID]
	if !ok {
		return nil, nil
	}
	st := &model.UserState{User: *u, Trainings: copyInts(w.Levels[userID])}

	var props []*model.Property
	for _, p := range w.Props {
		if p.UserID == userID {
			props = append(props, p)
		}
	}
	sort.Slice(props, func(i, j int) bool { return props[i].ID < props[j].ID })
	for _, p := range props {
		ps := model.PropertyState{
			Property: *p,
			Rooms:    copyInts(w.Rooms[p.ID]),
			Troops:   copyCounts(w.Off[p.ID]),
			Security: copyCounts(w.Sec[p.ID]),
		}
		for _, e := range w.Constructions {
			if e.PropertyID == p.ID {
				ps.Constructions = append(ps.Constructions, *e)
			}
		}
		sort.Slice(ps.Constructions, func(i, j int) bool { return ps.Constructions[i].Seq < ps.Constructions[j].Seq })
		for _, e := range w.Recruitments {
			if e.PropertyID == p.ID {
				ps.Recruitment = e
			}
		}
		for _, e := range w.Trainings {
			if e.PropertyID == p.ID {
				ps.Training = e
			}
		}
		st.Properties = append(st.Properties, ps)
	}
	for _, m := range w.Missions {
		if m.UserID == userID {
			st.Missions = append(st.Missions, *m)
		}
	}
	sort.Slice(st.Missions, func(i, j int) bool { return st.Missions[i].ArrivesAt.Before(st.Missions[j].ArrivesAt) })
	for _, a := range w.Incoming {
		if a.DefenderUserID == userID {
			st.IncomingAttacks = append(st.IncomingAttacks, *a)
		}
	}
	st.Score = w.Scores[userID]
	return st, nil
}

type mockTx struct {
	w     *memWorld
	store *mockStore
}

var errCheckViolation = errors.New("check constraint violated")

func (t *mockTx) LockProperty(_ context.Context, id string) (*model.Property, error) {
	p, ok := t.w.Props[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (t *mockTx) PropertyAt(_ context.Context, c vendetta.Coords) (*model.Property, error) {
	for _, p := range t.w.Props {
		if p.Coords == c {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *mockTx) RoomLevels(_ context.Context, propertyID string) (map[string]int, error) {
	return copyInts(t.w.Rooms[propertyID]), nil
}

func (t *mockTx) Troops(_ context.Context, propertyID string) (map[string]int64, map[string]int64, error) {
	return copyCounts(t.w.Off[propertyID]), copyCounts(t.w.Sec[propertyID]), nil
}

func (t *mockTx) TrainingLevels(_ context.Context, userID string) (map[string]int, error) {
	return copyInts(t.w.Levels[userID]), nil
}

func (t *mockTx) CountProperties(_ context.Context, userID string) (int, error) {
	n := 0
	for _, p := range t.w.Props {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *mockTx) Constructions(_ context.Context, propertyID string) ([]model.ConstructionEntry, error) {
	var out []model.ConstructionEntry
	for _, e := range t.w.Constructions {
		if e.PropertyID == propertyID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *mockTx) Recruitment(_ context.Context, propertyID string) (*model.RecruitmentEntry, error) {
	for _, e := range t.w.Recruitments {
		if e.PropertyID == propertyID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *mockTx) Trainings(_ context.Context, userID string) ([]model.TrainingEntry, error) {
	var out []model.TrainingEntry
	for _, e := range t.w.Trainings {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (t *mockTx) LockMission(_ context.Context, id string) (*model.Mission, error) {
	if t.store.failMission[id] {
		return nil, fmt.Errorf("lock mission %s: deadlock detected", id)
	}
	m, ok := t.w.Missions[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (t *mockTx) UpdateResources(_ context.Context, propertyID string, res vendetta.Resources) error {
	if res.HasNegative() {
		return errCheckViolation
	}
	t.w.Props[propertyID].Resources = res
	return nil
}

func (t *mockTx) SaveProduction(_ context.Context, propertyID string, res vendetta.Resources, at time.Time) error {
	p := t.w.Props[propertyID]
	p.Resources = res
	p.UpdatedAt = at
	return nil
}

func (t *mockTx) SetRoomLevel(_ context.Context, propertyID, roomID string, level int) error {
	if t.w.Rooms[propertyID] == nil {
		t.w.Rooms[propertyID] = map[string]int{}
	}
	t.w.Rooms[propertyID][roomID] = level
	return nil
}

func (t *mockTx) AddTroops(_ context.Context, propertyID, troopID string, delta int64, security bool) error {
	bucket := t.w.Off
	if security {
		bucket = t.w.Sec
	}
	if bucket[propertyID] == nil {
		bucket[propertyID] = map[string]int64{}
	}
	if bucket[propertyID][troopID]+delta < 0 {
		return errCheckViolation
	}
	bucket[propertyID][troopID] += delta
	return nil
}

func (t *mockTx) CreateProperty(_ context.Context, p *model.Property, rooms map[string]int) error {
	for _, o := range t.w.Props {
		if o.Coords == p.Coords {
			return errors.New("duplicate coords")
		}
	}
	cp := *p
	t.w.Props[p.ID] = &cp
	t.w.Rooms[p.ID] = copyInts(rooms)
	return nil
}

func (t *mockTx) InsertConstruction(_ context.Context, e *model.ConstructionEntry) error {
	cp := *e
	t.w.Constructions[e.ID] = &cp
	return nil
}

func (t *mockTx) UpdateConstruction(_ context.Context, e *model.ConstructionEntry) error {
	cp := *e
	t.w.Constructions[e.ID] = &cp
	return nil
}

func (t *mockTx) DeleteConstruction(_ context.Context, id string) error {
	delete(t.w.Constructions, id)
	return nil
}

func (t *mockTx) InsertRecruitment(_ context.Context, e *model.RecruitmentEntry) error {
	cp := *e
	t.w.Recruitments[e.ID] = &cp
	return nil
}

func (t *mockTx) DeleteRecruitment(_ context.Context, id string) error {
	delete(t.w.Recruitments, id)
	return nil
}

func (t *mockTx) InsertTraining(_ context.Context, e *model.TrainingEntry) error {
	existing := slices.Clone(t.store.racedTrainings)
	for _, o := range t.w.Trainings {
		existing = append(existing, *o)
	}
	for _, o := range existing {
		if o.PropertyID == e.PropertyID {
			return fmt.Errorf("insert training: %w", repository.ErrPropertyBusy)
		}
		if o.UserID == e.UserID && o.TrainingID == e.TrainingID {
			return fmt.Errorf("insert training: %w", repository.ErrTrainingQueued)
		}
	}
	cp := *e
	t.w.Trainings[e.ID] = &cp
	return nil
}

func (t *mockTx) DeleteTraining(_ context.Context, id string) error {
	delete(t.w.Trainings, id)
	return nil
}

func (t *mockTx) SetTrainingLevel(_ context.Context, userID, trainingID string, level int) error {
	if t.w.Levels[userID] == nil {
		t.w.Levels[userID] = map[string]int{}
	}
	t.w.Levels[userID][trainingID] = level
	return nil
}

func (t *mockTx) InsertMission(_ context.Context, m *model.Mission) error {
	cp := *m
	t.w.Missions[m.ID] = &cp
	return nil
}

func (t *mockTx) UpdateMission(_ context.Context, m *model.Mission) error {
	cp := *m
	t.w.Missions[m.ID] = &cp
	return nil
}

func (t *mockTx) DeleteMission(_ context.Context, id string) (bool, error) {
	_, ok := t.w.Missions[id]
	delete(t.w.Missions, id)
	return ok, nil
}

func (t *mockTx) InsertIncomingAttack(_ context.Context, a *model.IncomingAttack) error {
	cp := *a
	t.w.Incoming[a.ID] = &cp
	return nil
}

func (t *mockTx) DeleteIncomingAttackByMission(_ context.Context, missionID string) error {
	for id, a := range t.w.Incoming {
		if a.MissionID == missionID {
			delete(t.w.Incoming, id)
		}
	}
	return nil
}

func (t *mockTx) InsertBattleReport(_ context.Context, r *model.BattleReport) error {
	t.w.Battles = append(t.w.Battles, *r)
	return nil
}

func (t *mockTx) InsertEspionageReport(_ context.Context, r *model.EspionageReport) error {
	t.w.Espionage = append(t.w.Espionage, *r)
	return nil
}

func (t *mockTx) InsertMessage(_ context.Context, m *model.Message) error {
	t.w.Messages = append(t.w.Messages, *m)
	return nil
}

func (t *mockTx) AddHonor(_ context.Context, userID string, points int64) error {
	t.w.Honor[userID] += points
	return nil
}

func (t *mockTx) UpsertScore(_ context.Context, sc *model.Score) error {
	sc.Honor = t.w.Honor[sc.UserID]
	sc.Total = sc.Rooms + sc.Troops + sc.Trainings + sc.Honor
	cp := *sc
	t.w.Scores[sc.UserID] = &cp
	return nil
}

func (t *mockTx) TouchUser(_ context.Context, userID string, advancedAt time.Time) error {
	if u, ok := t.w.Users[userID]; ok {
		u.LastAdvanceAt = &advancedAt
	}
	return nil
}

// mockUserRepo lists the users of a mockStore.
type mockUserRepo struct {
	store *mockStore
}

func (r *mockUserRepo) Upsert(_ context.Context, id, displayName string) (*model.User, error) {
	u := &model.User{ID: id, DisplayName: displayName}
	r.store.seed(func(w *memWorld) { w.Users[id] = u })
	return u, nil
}

func (r *mockUserRepo) ListIDs(_ context.Context) ([]string, error) {
	w := r.store.world()
	ids := make([]string, 0, len(w.Users))
	for id := range w.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// mockCache implements repository.AdvanceCache in memory.
type mockCache struct {
	mu        sync.Mutex
	locks     map[string]string
	throttled map[string]time.Time
	due       map[string]time.Time
	lockErr   error
	clock     *fakeClock
}

func newMockCache(clock *fakeClock) *mockCache {
	return &mockCache{
		locks:     map[string]string{},
		throttled: map[string]time.Time{},
		due:       map[string]time.Time{},
		clock:     clock,
	}
}

func (c *mockCache) AcquireUserLock(_ context.Context, userID string, _ time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockErr != nil {
		return "", c.lockErr
	}
	if _, held := c.locks[userID]; held {
		return "", nil
	}
	token := fmt.Sprintf("token-%s-%d", userID, len(c.locks))
	c.locks[userID] = token
	return token, nil
}

func (c *mockCache) ReleaseUserLock(_ context.Context, userID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[userID] == token {
		delete(c.locks, userID)
	}
	return nil
}

func (c *mockCache) AllowAdvance(_ context.Context, userID string, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if window <= 0 {
		return true, nil
	}
	now := c.clock.Now()
	if until, ok := c.throttled[userID]; ok && now.Before(until) {
		return false, nil
	}
	c.throttled[userID] = now.Add(window)
	return true, nil
}

func (c *mockCache) ScheduleDue(_ context.Context, userID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.due[userID] = at
	return nil
}

func (c *mockCache) ClearDue(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.due, userID)
	return nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingBroadcaster keeps every event it is asked to send.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (b *recordingBroadcaster) BroadcastUserEvent(userID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{userID: userID, kind: eventType, data: data})
}

func (b *recordingBroadcaster) count(userID, kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.userID == userID && e.kind == kind {
			n++
		}
	}
	return n
}

// testCatalog is a small catalog with round numbers.
func testCatalog(t *testing.T) *vendetta.Catalog {
	t.Helper()
	rooms := []vendetta.RoomConfig{
		{ID: vendetta.RoomBossOffice, Name: "Office", Cost: vendetta.Resources{Armas: 100, Municion: 100, Dolares: 100}, Duration: 100, Points: 10},
		{ID: "armeria", Name: "Armory", Cost: vendetta.Resources{Armas: 50}, Duration: 60, Points: 2,
			Produces: vendetta.Armas, ProductionFormula: "Level * 3600"},
		{ID: vendetta.RoomWeaponsStore, Name: "Weapons store", Cost: vendetta.Resources{Armas: 10}, Duration: 60, Stores: vendetta.Armas},
		{ID: vendetta.RoomSchool, Name: "School", Cost: vendetta.Resources{Dolares: 10}, Duration: 60,
			Requirements: []vendetta.Requirement{{Kind: vendetta.RequireRoom, ID: vendetta.RoomBossOffice, Level: 2}}},
		{ID: vendetta.RoomTurret, Name: "Turret", Duration: 60, DefenseBonus: 0.05},
	}
	troops := []vendetta.TroopConfig{
		{ID: "sicario", Name: "Sicario", Type: vendetta.TroopAttack, Attack: 10, Defense: 10, Capacity: 100, Speed: 1000,
			Points: 2, Cost: vendetta.Resources{Armas: 100}, Duration: 10},
		{ID: "guardia", Name: "Guardia", Type: vendetta.TroopDefense, Attack: 15, Defense: 15, Points: 3,
			Cost: vendetta.Resources{Municion: 50}, Duration: 10},
		{ID: "espia", Name: "Espia", Type: vendetta.TroopSpy, Attack: 1, Defense: 1, Speed: 4000, Points: 1},
		{ID: "colono", Name: "Colono", Type: vendetta.TroopOccupy, Attack: 1, Defense: 1, Speed: 500, Points: 5},
		{ID: "mula", Name: "Mula", Type: vendetta.TroopTransport, Defense: 1, Capacity: 1000, Speed: 900},
	}
	trainings := []vendetta.TrainingConfig{
		{ID: vendetta.TrainingRoutes, Name: "Rutas", Cost: vendetta.Resources{Armas: 100}, Duration: 100, Points: 4},
		{ID: vendetta.TrainingErrands, Name: "Encargos", Cost: vendetta.Resources{Armas: 100}, Duration: 100, Points: 4},
	}
	rules := vendetta.Rules{
		MaxConstructionQueue: 5,
		BaseStorage:          10000,
		StoragePerLevel:      10000,
		MaxRounds:            5,
		ColonyResources:      500,
		ColonyRoomLevel:      1,
	}
	c, err := vendetta.NewCatalog(rooms, troops, trainings, nil, rules)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

// harness wires a GameStateService and ActionService to in-memory fakes.
type harness struct {
	store   *mockStore
	cache   *mockCache
	clock   *fakeClock
	bc      *recordingBroadcaster
	game    *GameStateService
	actions *ActionService
	t0      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	h := &harness{
		store: newMockStore(),
		clock: clock,
		cache: newMockCache(clock),
		bc:    &recordingBroadcaster{},
		t0:    clock.Now(),
	}
	h.game = NewGameStateService(h.store, h.cache, testCatalog(t), h.clock, h.bc, AdvanceOptions{})
	h.actions = NewActionService(h.game)
	return h
}

func (h *harness) addUser(id string) {
	h.store.seed(func(w *memWorld) {
		w.Users[id] = &model.User{ID: id, DisplayName: id, CreatedAt: h.t0}
	})
}

func (h *harness) addProperty(id, userID string, c vendetta.Coords, res vendetta.Resources, rooms map[string]int) {
	h.store.seed(func(w *memWorld) {
		w.Props[id] = &model.Property{ID: id, UserID: userID, Name: id, Coords: c, Resources: res, UpdatedAt: h.t0, CreatedAt: h.t0}
		w.Rooms[id] = copyInts(rooms)
	})
}

func (h *harness) station(propertyID, troopID string, qty int64, security bool) {
	h.store.seed(func(w *memWorld) {
		bucket := w.Off
		if security {
			bucket = w.Sec
		}
		if bucket[propertyID] == nil {
			bucket[propertyID] = map[string]int64{}
		}
		bucket[propertyID][troopID] += qty
	})
}

func (h *harness) at(d time.Duration) time.Time { return h.t0.Add(d) }

func ptr[T any](v T) *T { return &v }
