package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// AdvanceOptions tunes cross-process coordination.
type AdvanceOptions struct {
	// Throttle skips a non-forced advance when the user was advanced within
	// it and nothing is due yet.
	Throttle time.Duration
	// LockTTL bounds how long the distributed user lock may be held.
	LockTTL time.Duration
}

// GameStateService advances a user's deferred effects up to now: production,
// construction, recruitment, training and missions.
type GameStateService struct {
	store       repository.GameStore
	cache       repository.AdvanceCache
	catalog     *vendetta.Catalog
	clock       Clock
	broadcaster Broadcaster
	opts        AdvanceOptions

	group singleflight.Group
	// userLocks serialises advancement of the same user within the process.
	userLocks sync.Map
}

// NewGameStateService creates a GameStateService. A nil cache disables the
// distributed lock and the throttle.
func NewGameStateService(
	store repository.GameStore,
	cache repository.AdvanceCache,
	catalog *vendetta.Catalog,
	clock Clock,
	broadcaster Broadcaster,
	opts AdvanceOptions,
) *GameStateService {
	if cache == nil {
		cache = noopCache{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &GameStateService{
		store:       store,
		cache:       cache,
		catalog:     catalog,
		clock:       clock,
		broadcaster: broadcaster,
		opts:        opts,
	}
}

// Catalog returns the game catalog the service runs on.
func (s *GameStateService) Catalog() *vendetta.Catalog {
	return s.catalog
}

// Advance brings the user up to date. The throttle may skip production
// integration, but entries already due are always resolved.
func (s *GameStateService) Advance(ctx context.Context, userID string) (*model.UserState, error) {
	a, err := s.advance(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return a.state, nil
}

// ForceAdvance brings the user up to date regardless of the throttle.
func (s *GameStateService) ForceAdvance(ctx context.Context, userID string) (*model.UserState, error) {
	a, err := s.advance(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return a.state, nil
}

// advanced is the outcome of one advancement. failed counts entries that
// could not be resolved and were left for a retry.
type advanced struct {
	state  *model.UserState
	failed int
}

func (s *GameStateService) advance(ctx context.Context, userID string, force bool) (advanced, error) {
	key := userID
	if force {
		key += ":force"
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.advanceLocked(ctx, userID, force)
	})
	if err != nil {
		return advanced{}, err
	}
	return v.(advanced), nil
}

func (s *GameStateService) userLock(userID string) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// snapshot loads the state without resolving anything.
func (s *GameStateService) snapshot(ctx context.Context, userID string) (advanced, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return advanced{}, err
	}
	return advanced{state: state}, nil
}

func (s *GameStateService) advanceLocked(ctx context.Context, userID string, force bool) (advanced, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	l := log.With().Str("userId", userID).Logger()

	token, err := s.cache.AcquireUserLock(ctx, userID, s.opts.LockTTL)
	switch {
	case err != nil:
		l.Warn().Err(err).Msg("User lock unavailable, advancing with the local lock only")
	case token == "":
		l.Debug().Msg("User is being advanced elsewhere, returning snapshot")
		return s.snapshot(ctx, userID)
	default:
		defer func() {
			if err := s.cache.ReleaseUserLock(context.WithoutCancel(ctx), userID, token); err != nil {
				l.Warn().Err(err).Msg("Failed to release user lock")
			}
		}()
	}

	state, err := s.load(ctx, userID)
	if err != nil {
		return advanced{}, err
	}
	now := s.clock.Now()

	if !force {
		if at, ok := nextDue(state); !ok || at.After(now) {
			allowed, err := s.cache.AllowAdvance(ctx, userID, s.opts.Throttle)
			if err != nil {
				l.Warn().Err(err).Msg("Advance throttle unavailable")
			} else if !allowed {
				return advanced{state: state}, nil
			}
		}
	}

	r := &run{svc: s, userID: userID, now: now, log: l}
	r.integrateProduction(ctx, state)
	r.resolveConstructions(ctx, state)
	r.resolveRecruitments(ctx, state)
	r.resolveTrainings(ctx, state)
	r.resolveMissions(ctx, state)

	if state, err = s.load(ctx, userID); err != nil {
		return advanced{}, err
	}
	if err := r.finish(ctx, state); err != nil {
		l.Error().Err(err).Msg("Failed to update score")
	}
	s.scheduleDue(ctx, state, l)
	r.out.flush(s.broadcaster)

	if r.completed > 0 || r.failed > 0 {
		l.Info().Int("completed", r.completed).Int("failed", r.failed).Msg("User advanced")
	}
	return advanced{state: state, failed: r.failed}, nil
}

func (s *GameStateService) load(ctx context.Context, userID string) (*model.UserState, error) {
	state, err := s.store.LoadUserState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user state: %w", err)
	}
	if state == nil {
		return nil, ErrNotFound
	}
	for i := range state.Properties {
		ps := &state.Properties[i]
		prod, err := s.catalog.PropertyProduction(ps.Rooms, ps.Stationed(), state.Trainings)
		if err == nil {
			ps.Production = &prod
		}
		ps.Capacity = s.catalog.StorageCapacity(ps.Rooms)
	}
	return state, nil
}

// nextDue is the earliest pending completion of the user, if any.
func nextDue(state *model.UserState) (time.Time, bool) {
	var due []time.Time
	for _, ps := range state.Properties {
		for _, e := range ps.Constructions {
			if e.FinishesAt != nil {
				due = append(due, *e.FinishesAt)
			}
		}
		if ps.Recruitment != nil {
			due = append(due, ps.Recruitment.FinishesAt)
		}
		if ps.Training != nil {
			due = append(due, ps.Training.FinishesAt)
		}
	}
	for _, m := range state.Missions {
		due = append(due, missionDue(&m))
	}
	if len(due) == 0 {
		return time.Time{}, false
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Before(due[j]) })
	return due[0], true
}

func (s *GameStateService) scheduleDue(ctx context.Context, state *model.UserState, l zerolog.Logger) {
	at, ok := nextDue(state)
	var err error
	if ok {
		err = s.cache.ScheduleDue(ctx, state.User.ID, at)
	} else {
		err = s.cache.ClearDue(ctx, state.User.ID)
	}
	if err != nil {
		l.Warn().Err(err).Msg("Failed to update due timer")
	}
}

// run carries the bookkeeping of one advancement.
type run struct {
	svc    *GameStateService
	userID string
	now    time.Time
	log    zerolog.Logger
	out    outbox

	completed int
	failed    int
}

// inTx runs fn in its own transaction. Events are kept only if it commits.
// Failures are logged and counted; the advancement continues.
func (r *run) inTx(ctx context.Context, kind, entryID string, fn func(tx repository.GameTx, ob *outbox) (bool, error)) bool {
	var ob outbox
	var done bool
	err := r.svc.store.RunInTx(ctx, func(tx repository.GameTx) error {
		var err error
		done, err = fn(tx, &ob)
		return err
	})
	if err != nil {
		r.failed++
		ev := r.log.Error()
		if IsInvariant(err) {
			ev = r.log.Warn().Bool("flagged", true)
		}
		ev.Err(err).Str("kind", kind).Str("entryId", entryID).Msg("Failed to resolve entry")
		return false
	}
	r.out.events = append(r.out.events, ob.events...)
	if done {
		r.completed++
		r.log.Debug().Str("kind", kind).Str("entryId", entryID).Msg("Entry resolved")
	}
	return done
}

// finish recomputes the score and records the advancement.
func (r *run) finish(ctx context.Context, state *model.UserState) error {
	in := vendetta.ScoreInput{Trainings: state.Trainings}
	for _, ps := range state.Properties {
		for id, level := range ps.Rooms {
			in.RoomLevels = append(in.RoomLevels, vendetta.RoomLevel{RoomID: id, Level: level})
		}
		in.Troops = append(in.Troops, ps.Units()...)
	}
	sc := r.svc.catalog.Score(in)
	score := &model.Score{
		UserID:    r.userID,
		Rooms:     sc.Rooms,
		Troops:    sc.Troops,
		Trainings: sc.Trainings,
		UpdatedAt: r.now,
	}
	err := r.svc.store.RunInTx(ctx, func(tx repository.GameTx) error {
		if err := tx.UpsertScore(ctx, score); err != nil {
			return err
		}
		return tx.TouchUser(ctx, r.userID, r.now)
	})
	if err != nil {
		return err
	}
	state.Score = score
	return nil
}

// noopCache stands in for Redis when it is not configured.
type noopCache struct{}

func (noopCache) AcquireUserLock(context.Context, string, time.Duration) (string, error) {
	return "local", nil
}
func (noopCache) ReleaseUserLock(context.Context, string, string) error { return nil }
func (noopCache) AllowAdvance(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (noopCache) ScheduleDue(context.Context, string, time.Time) error { return nil }
func (noopCache) ClearDue(context.Context, string) error               { return nil }
