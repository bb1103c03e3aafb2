package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/freeeve/vendetta/api/internal/repository"
)

// SweepResult summarises one pass over every user. Failed counts users that
// could not be advanced plus entries left unresolved for a retry.
type SweepResult struct {
	Users   int `json:"users"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Sweeper advances every user, so effects resolve for players who are offline.
type Sweeper struct {
	users   repository.UserRepository
	game    *GameStateService
	workers int
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewSweeper creates a Sweeper. perSecond <= 0 disables pacing.
func NewSweeper(users repository.UserRepository, game *GameStateService, workers int, perSecond float64) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Sweeper{
		users:   users,
		game:    game,
		workers: workers,
		limiter: rate.NewLimiter(limit, workers),
	}
}

// AdvanceAll force-advances every user. A failing user or entry is counted
// and the sweep goes on. Concurrent calls share one pass, which outlives the
// cancellation of any single caller.
func (s *Sweeper) AdvanceAll(ctx context.Context) (SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return SweepResult{}, err
	}
	ch := s.group.DoChan("sweep", func() (any, error) {
		return s.sweep(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return SweepResult{}, r.Err
		}
		return r.Val.(SweepResult), nil
	}
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list users: %w", err)
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		if err := s.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			a, err := s.game.advance(gctx, id, true)
			if err != nil {
				failed.Add(1)
				log.Error().Err(err).Str("userId", id).Msg("Sweep failed to advance user")
				return nil
			}
			updated.Add(1)
			failed.Add(int64(a.failed))
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Users: len(ids), Updated: int(updated.Load()), Failed: int(failed.Load())}
	log.Info().Int("users", res.Users).Int("updated", res.Updated).Int("failed", res.Failed).
		Dur("took", time.Since(start)).Msg("Sweep finished")
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
