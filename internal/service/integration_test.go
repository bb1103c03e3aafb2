//go:build integration

package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/vendetta/api/internal/repository/redis"
	"github.com/freeeve/vendetta/api/internal/testutil"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// testEnv holds shared test infrastructure.
type testEnv struct {
	db       *sql.DB
	rdb      *goredis.Client
	userRepo *postgres.UserRepo
	store    *postgres.StateRepo
	cache    *redisrepo.Client
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:       db,
			rdb:      rdb,
			userRepo: postgres.NewUserRepo(db),
			store:    postgres.NewStateRepo(db),
			cache:    redisrepo.Wrap(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

// createPlayer inserts a user owning one property at c.
func createPlayer(t *testing.T, e *testEnv, c vendetta.Coords, res vendetta.Resources, rooms map[string]int, at time.Time) (userID, propertyID string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.userRepo.Upsert(ctx, uuid.NewString(), "Player")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	p := &model.Property{ID: uuid.NewString(), UserID: u.ID, Name: "HQ", Coords: c, Resources: res, UpdatedAt: at}
	err = e.store.RunInTx(ctx, func(tx repository.GameTx) error {
		return tx.CreateProperty(ctx, p, rooms)
	})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return u.ID, p.ID
}

func TestIntegrationConstructionLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	clock.Set(time.Now().UTC().Truncate(time.Second))
	game := NewGameStateService(e.store, e.cache, vendetta.DefaultCatalog(), clock, nil, AdvanceOptions{})
	actions := NewActionService(game)

	userID, propertyID := createPlayer(t, e, vendetta.Coords{Ciudad: 1, Barrio: 1, Edificio: 1},
		vendetta.Resources{Armas: 5000, Municion: 5000, Dolares: 5000},
		map[string]int{vendetta.RoomBossOffice: 1}, clock.Now())

	entry, err := actions.SubmitConstruction(ctx, userID, propertyID, vendetta.RoomBossOffice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry.Duration != 2400 || entry.FinishesAt == nil {
		t.Fatalf("entry: %+v", entry)
	}
	ttl, err := e.rdb.TTL(ctx, redisrepo.DuePrefix+userID).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("due key should be scheduled: ttl=%v err=%v", ttl, err)
	}

	clock.Set(*entry.FinishesAt)
	st, err := game.ForceAdvance(ctx, userID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	ps := st.Property(propertyID)
	if ps.Rooms[vendetta.RoomBossOffice] != 2 || len(ps.Constructions) != 0 {
		t.Errorf("office should be level 2 with an empty queue: %v %+v", ps.Rooms, ps.Constructions)
	}
	if st.Score == nil || st.Score.Rooms != 20 {
		t.Errorf("score: %+v", st.Score)
	}
}

func TestIntegrationConcurrentAdvanceAppliesOnce(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	clock.Set(time.Now().UTC().Truncate(time.Second))
	game := NewGameStateService(e.store, e.cache, vendetta.DefaultCatalog(), clock, nil, AdvanceOptions{})
	actions := NewActionService(game)

	userID, propertyID := createPlayer(t, e, vendetta.Coords{Ciudad: 1, Barrio: 1, Edificio: 2},
		vendetta.Resources{Armas: 5000, Municion: 5000, Dolares: 5000}, nil, clock.Now())
	if _, err := actions.SubmitRecruitment(ctx, userID, propertyID, "maton", 10); err != nil {
		t.Fatalf("recruit: %v", err)
	}
	clock.Advance(10 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := game.ForceAdvance(ctx, userID); err != nil {
				t.Errorf("advance: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := e.store.LoadUserState(ctx, userID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ps := st.Property(propertyID)
	if ps.Troops["maton"] != 10 || ps.Recruitment != nil {
		t.Errorf("recruitment should complete exactly once: %v %+v", ps.Troops, ps.Recruitment)
	}
}

func TestIntegrationAttackRoundTrip(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	clock.Set(time.Now().UTC().Truncate(time.Second))
	bc := &recordingBroadcaster{}
	game := NewGameStateService(e.store, e.cache, vendetta.DefaultCatalog(), clock, bc, AdvanceOptions{})
	actions := NewActionService(game)

	attID, attProp := createPlayer(t, e, vendetta.Coords{Ciudad: 1, Barrio: 1, Edificio: 3},
		vendetta.Resources{Dolares: 10000}, nil, clock.Now())
	defID, _ := createPlayer(t, e, vendetta.Coords{Ciudad: 1, Barrio: 1, Edificio: 4},
		vendetta.Resources{Armas: 3000, Dolares: 3000}, nil, clock.Now())
	err := e.store.RunInTx(ctx, func(tx repository.GameTx) error {
		return tx.AddTroops(ctx, attProp, "maton", 50, false)
	})
	if err != nil {
		t.Fatalf("station: %v", err)
	}

	m, err := actions.SendMission(ctx, attID, MissionRequest{
		OriginPropertyID: attProp,
		Target:           vendetta.Coords{Ciudad: 1, Barrio: 1, Edificio: 4},
		Type:             vendetta.MissionAttack,
		Troops:           []vendetta.UnitCount{{TroopID: "maton", Quantity: 50}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if bc.count(defID, EventIncomingAttack) != 1 {
		t.Error("defender should be warned")
	}

	clock.Set(m.ArrivesAt)
	if _, err := game.ForceAdvance(ctx, attID); err != nil {
		t.Fatalf("advance at arrival: %v", err)
	}
	reports, err := postgres.NewReportRepo(e.db).ListBattleReports(ctx, defID, 10)
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Winner != string(vendetta.WinnerAttacker) {
		t.Fatalf("battle reports: %+v", reports)
	}

	st, err := e.store.LoadUserState(ctx, attID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(st.Missions) != 1 || st.Missions[0].Type != vendetta.MissionReturn {
		t.Fatalf("mission should be returning: %+v", st.Missions)
	}
	clock.Set(*st.Missions[0].ReturnsAt)
	st, err = game.ForceAdvance(ctx, attID)
	if err != nil {
		t.Fatalf("advance at return: %v", err)
	}
	if len(st.Missions) != 0 || st.Property(attProp).Troops["maton"] != 50 {
		t.Errorf("troops should be home: missions=%d troops=%v", len(st.Missions), st.Property(attProp).Troops)
	}
}
