package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// ActionService validates and enqueues player actions. Every action first
// advances the user so it is checked against current balances and levels.
type ActionService struct {
	game *GameStateService
}

// NewActionService creates an ActionService on top of the engine.
func NewActionService(game *GameStateService) *ActionService {
	return &ActionService{game: game}
}

func (s *ActionService) catalog() *vendetta.Catalog { return s.game.catalog }

// ownedProperty locks a property and integrates it up to now.
func (s *ActionService) ownedProperty(ctx context.Context, tx repository.GameTx, userID, propertyID string) (*model.Property, map[string]int, error) {
	p, err := tx.LockProperty(ctx, propertyID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrNotFound
	}
	if p.UserID != userID {
		return nil, nil, ErrNotOwner
	}
	rooms, err := s.game.integrateLocked(ctx, tx, p, s.game.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	return p, rooms, nil
}

func pay(ctx context.Context, tx repository.GameTx, p *model.Property, cost vendetta.Resources) error {
	if !p.Resources.Covers(cost) {
		return ErrInsufficientResources
	}
	p.Resources = p.Resources.Sub(cost)
	return tx.UpdateResources(ctx, p.ID, p.Resources)
}

// after reschedules the user's due timer once an action has committed.
func (s *ActionService) after(ctx context.Context, userID string) {
	state, err := s.game.load(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("Failed to reload state after action")
		return
	}
	s.game.scheduleDue(ctx, state, log.With().Str("userId", userID).Logger())
}

// SubmitConstruction appends a room upgrade to the property's queue.
func (s *ActionService) SubmitConstruction(ctx context.Context, userID, propertyID, roomID string) (*model.ConstructionEntry, error) {
	cat := s.catalog()
	cfg, err := cat.Room(roomID)
	if err != nil {
		return nil, ErrUnknownItem
	}
	if _, err := s.game.ForceAdvance(ctx, userID); err != nil {
		return nil, err
	}

	var entry *model.ConstructionEntry
	err = s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		p, rooms, err := s.ownedProperty(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		queue, err := tx.Constructions(ctx, propertyID)
		if err != nil {
			return err
		}
		if len(queue) >= cat.Rules.MaxConstructionQueue {
			return ErrQueueFull
		}
		trainings, err := tx.TrainingLevels(ctx, userID)
		if err != nil {
			return err
		}
		if err := vendetta.CheckRequirements(cfg.Requirements, rooms, trainings); err != nil {
			return err
		}

		target := rooms[roomID] + 1
		seq := 1
		for _, e := range queue {
			if e.RoomID == roomID {
				target++
			}
			seq = max(seq, e.Seq+1)
		}
		if err := pay(ctx, tx, p, vendetta.RoomCost(cfg, target)); err != nil {
			return err
		}

		now := s.game.clock.Now()
		entry = &model.ConstructionEntry{
			ID:          uuid.New().String(),
			PropertyID:  propertyID,
			RoomID:      roomID,
			TargetLevel: target,
			Seq:         seq,
			Duration:    vendetta.ConstructionTime(cfg, target, rooms[vendetta.RoomBossOffice]),
			CreatedAt:   now,
		}
		if len(queue) == 0 {
			finish := addSeconds(now, entry.Duration)
			entry.StartedAt = &now
			entry.FinishesAt = &finish
		}
		return tx.InsertConstruction(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("userId", userID).Str("propertyId", propertyID).Str("roomId", roomID).
		Int("level", entry.TargetLevel).Msg("Construction queued")
	s.after(ctx, userID)
	return entry, nil
}

// CancelConstruction removes a queued entry that has not started. Later
// entries of the same room move down one level and the cost of the room's
// highest queued level is refunded.
func (s *ActionService) CancelConstruction(ctx context.Context, userID, entryID string) error {
	state, err := s.game.ForceAdvance(ctx, userID)
	if err != nil {
		return err
	}
	propertyID := ""
	for _, ps := range state.Properties {
		for _, e := range ps.Constructions {
			if e.ID == entryID {
				propertyID = ps.Property.ID
			}
		}
	}
	if propertyID == "" {
		return ErrNotFound
	}

	cat := s.catalog()
	err = s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		p, rooms, err := s.ownedProperty(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		queue, err := tx.Constructions(ctx, propertyID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range queue {
			if queue[i].ID == entryID {
				idx = i
			}
		}
		if idx < 0 {
			return ErrNotFound
		}
		entry := queue[idx]
		if entry.Started() {
			return ErrAlreadyStarted
		}
		cfg, err := cat.Room(entry.RoomID)
		if err != nil {
			return invariant("construction "+entry.ID, "%v", err)
		}

		if err := tx.DeleteConstruction(ctx, entry.ID); err != nil {
			return err
		}
		// Later entries of the room shift down a level, so the level that
		// leaves the queue is the highest one and that is what gets refunded.
		refundLevel := entry.TargetLevel
		for _, later := range queue[idx+1:] {
			if later.RoomID != entry.RoomID {
				continue
			}
			refundLevel = max(refundLevel, later.TargetLevel)
			later.TargetLevel--
			later.Duration = vendetta.ConstructionTime(cfg, later.TargetLevel, rooms[vendetta.RoomBossOffice])
			if err := tx.UpdateConstruction(ctx, &later); err != nil {
				return err
			}
		}
		p.Resources = p.Resources.Add(vendetta.RoomCost(cfg, refundLevel))
		return tx.UpdateResources(ctx, p.ID, p.Resources)
	})
	if err != nil {
		return err
	}
	log.Info().Str("userId", userID).Str("entryId", entryID).Msg("Construction cancelled")
	return nil
}

// SubmitRecruitment starts recruiting qty units of a troop. A property
// recruits one batch at a time.
func (s *ActionService) SubmitRecruitment(ctx context.Context, userID, propertyID, troopID string, qty int64) (*model.RecruitmentEntry, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	cfg, err := s.catalog().Troop(troopID)
	if err != nil {
		return nil, ErrUnknownItem
	}
	if _, err := s.game.ForceAdvance(ctx, userID); err != nil {
		return nil, err
	}

	var entry *model.RecruitmentEntry
	err = s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		p, rooms, err := s.ownedProperty(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		cur, err := tx.Recruitment(ctx, propertyID)
		if err != nil {
			return err
		}
		if cur != nil {
			return ErrQueueBusy
		}
		trainings, err := tx.TrainingLevels(ctx, userID)
		if err != nil {
			return err
		}
		if err := vendetta.CheckRequirements(cfg.Requirements, rooms, trainings); err != nil {
			return err
		}
		if err := pay(ctx, tx, p, vendetta.RecruitmentCost(cfg, qty)); err != nil {
			return err
		}

		yard := rooms[vendetta.RoomTrainingYard]
		if cfg.IsSecurity() {
			yard = rooms[vendetta.RoomSecurity]
		}
		now := s.game.clock.Now()
		entry = &model.RecruitmentEntry{
			ID:         uuid.New().String(),
			PropertyID: propertyID,
			TroopID:    troopID,
			Quantity:   qty,
			StartedAt:  now,
			FinishesAt: addSeconds(now, vendetta.RecruitmentTime(cfg, qty, yard)),
		}
		return tx.InsertRecruitment(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("userId", userID).Str("propertyId", propertyID).Str("troopId", troopID).
		Int64("quantity", qty).Msg("Recruitment started")
	s.after(ctx, userID)
	return entry, nil
}

// SubmitTraining starts the next level of a user-wide training from a property.
func (s *ActionService) SubmitTraining(ctx context.Context, userID, propertyID, trainingID string) (*model.TrainingEntry, error) {
	cfg, err := s.catalog().Training(trainingID)
	if err != nil {
		return nil, ErrUnknownItem
	}
	if _, err := s.game.ForceAdvance(ctx, userID); err != nil {
		return nil, err
	}

	var entry *model.TrainingEntry
	err = s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		p, rooms, err := s.ownedProperty(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		running, err := tx.Trainings(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range running {
			if t.PropertyID == propertyID {
				return ErrQueueBusy
			}
			if t.TrainingID == trainingID {
				return ErrTrainingInProgress
			}
		}
		levels, err := tx.TrainingLevels(ctx, userID)
		if err != nil {
			return err
		}
		if err := vendetta.CheckRequirements(cfg.Requirements, rooms, levels); err != nil {
			return err
		}
		target := levels[trainingID] + 1
		if err := pay(ctx, tx, p, vendetta.TrainingCost(cfg, target)); err != nil {
			return err
		}

		now := s.game.clock.Now()
		entry = &model.TrainingEntry{
			ID:          uuid.New().String(),
			UserID:      userID,
			PropertyID:  propertyID,
			TrainingID:  trainingID,
			TargetLevel: target,
			StartedAt:   now,
			FinishesAt:  addSeconds(now, vendetta.TrainingTime(cfg, target, rooms[vendetta.RoomSchool])),
		}
		return tx.InsertTraining(ctx, entry)
	})
	switch {
	case errors.Is(err, repository.ErrPropertyBusy):
		return nil, ErrQueueBusy
	case errors.Is(err, repository.ErrTrainingQueued):
		return nil, ErrTrainingInProgress
	case err != nil:
		return nil, err
	}
	log.Info().Str("userId", userID).Str("trainingId", trainingID).Int("level", entry.TargetLevel).Msg("Training started")
	s.after(ctx, userID)
	return entry, nil
}

