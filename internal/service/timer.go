package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisrepo "github.com/freeeve/vendetta/api/internal/repository/redis"
)

// DueTimerListener advances a user as soon as their due key expires in Redis.
// Keyspace notifications are fire-and-forget, so a periodic sweep backs them up.
type DueTimerListener struct {
	rdb      *redis.Client
	game     *GameStateService
	sweeper  *Sweeper
	interval time.Duration
}

// NewDueTimerListener creates a DueTimerListener. With a nil rdb only the
// periodic sweep runs.
func NewDueTimerListener(rdb *redis.Client, game *GameStateService, sweeper *Sweeper, interval time.Duration) *DueTimerListener {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DueTimerListener{rdb: rdb, game: game, sweeper: sweeper, interval: interval}
}

// expiredChannel is the keyevent channel of the client's selected database.
func expiredChannel(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}

// Start blocks until ctx is done. It sweeps once immediately so work that
// fell due while the server was down is not left waiting a full interval.
func (t *DueTimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listen(ctx)
	}
	t.sweep(ctx, "startup")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Due timer listener stopped")
			return
		case <-ticker.C:
			t.sweep(ctx, "periodic")
		}
	}
}

func (t *DueTimerListener) sweep(ctx context.Context, reason string) {
	if _, err := t.sweeper.AdvanceAll(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("reason", reason).Msg("Sweep failed")
	}
}

func (t *DueTimerListener) listen(ctx context.Context) {
	channel := expiredChannel(t.rdb.Options().DB)
	sub := t.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	log.Info().Str("channel", channel).Dur("interval", t.interval).Msg("Due timer listener started")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.onExpired(ctx, msg.Payload)
		}
	}
}

// onExpired advances the owner of an expired due key and ignores other keys.
func (t *DueTimerListener) onExpired(ctx context.Context, key string) {
	userID, ok := redisrepo.UserIDFromDueKey(key)
	if !ok {
		return
	}
	if _, err := t.game.ForceAdvance(ctx, userID); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Advance after due timer failed")
		return
	}
	log.Debug().Str("userId", userID).Msg("Due timer fired")
}
