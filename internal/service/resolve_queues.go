package service

import (
	"context"
	"time"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// integrateLocked brings a locked property's balances up to now and returns
// them with its room levels. Whole seconds are integrated; the remainder is
// kept for the next run.
func (s *GameStateService) integrateLocked(ctx context.Context, tx repository.GameTx, p *model.Property, now time.Time) (map[string]int, error) {
	rooms, err := tx.RoomLevels(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	elapsed := int64(now.Sub(p.UpdatedAt) / time.Second)
	if elapsed <= 0 {
		return rooms, nil
	}
	off, sec, err := tx.Troops(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	trainings, err := tx.TrainingLevels(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	stationed := make(map[string]int64, len(off)+len(sec))
	for id, q := range off {
		stationed[id] += q
	}
	for id, q := range sec {
		stationed[id] += q
	}
	prod, err := s.catalog.PropertyProduction(rooms, stationed, trainings)
	if err != nil {
		return nil, err
	}
	next := vendetta.Integrate(p.Resources, prod.Net, s.catalog.StorageCapacity(rooms), elapsed)
	at := addSeconds(p.UpdatedAt, elapsed)
	if err := tx.SaveProduction(ctx, p.ID, next, at); err != nil {
		return nil, err
	}
	p.Resources = next
	p.UpdatedAt = at
	return rooms, nil
}

// integrateProduction runs before any queue effect, one transaction per property.
func (r *run) integrateProduction(ctx context.Context, state *model.UserState) {
	for _, ps := range state.Properties {
		id := ps.Property.ID
		r.inTx(ctx, "production", id, func(tx repository.GameTx, _ *outbox) (bool, error) {
			p, err := tx.LockProperty(ctx, id)
			if err != nil || p == nil {
				return false, err
			}
			_, err = r.svc.integrateLocked(ctx, tx, p, r.now)
			return false, err
		})
	}
}

// resolveConstructions completes due construction entries in queue order and
// starts the next one.
func (r *run) resolveConstructions(ctx context.Context, state *model.UserState) {
	for _, ps := range state.Properties {
		for _, e := range ps.Constructions {
			if e.FinishesAt == nil || e.FinishesAt.After(r.now) {
				break
			}
			if !r.inTx(ctx, "construction", e.ID, func(tx repository.GameTx, ob *outbox) (bool, error) {
				return r.completeConstruction(ctx, tx, ob, ps.Property.ID, e.ID)
			}) {
				break
			}
		}
	}
}

func (r *run) completeConstruction(ctx context.Context, tx repository.GameTx, ob *outbox, propertyID, entryID string) (bool, error) {
	p, err := tx.LockProperty(ctx, propertyID)
	if err != nil || p == nil {
		return false, err
	}
	entries, err := tx.Constructions(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 || entries[0].ID != entryID {
		return false, nil
	}
	head := entries[0]
	if head.FinishesAt == nil || head.FinishesAt.After(r.now) {
		return false, nil
	}

	rooms, err := tx.RoomLevels(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if head.TargetLevel != rooms[head.RoomID]+1 {
		return false, invariant("construction "+head.ID, "target level %d but %s is at %d", head.TargetLevel, head.RoomID, rooms[head.RoomID])
	}
	if err := tx.SetRoomLevel(ctx, propertyID, head.RoomID, head.TargetLevel); err != nil {
		return false, err
	}
	if err := tx.DeleteConstruction(ctx, head.ID); err != nil {
		return false, err
	}

	if len(entries) > 1 {
		next := entries[1]
		start := r.now
		finish := addSeconds(start, next.Duration)
		next.StartedAt = &start
		next.FinishesAt = &finish
		if err := tx.UpdateConstruction(ctx, &next); err != nil {
			return false, err
		}
	}

	ob.add(r.userID, EventQueueCompleted, map[string]any{
		"kind":       "construction",
		"propertyId": propertyID,
		"roomId":     head.RoomID,
		"level":      head.TargetLevel,
	})
	return true, nil
}

func (r *run) resolveRecruitments(ctx context.Context, state *model.UserState) {
	for _, ps := range state.Properties {
		e := ps.Recruitment
		if e == nil || e.FinishesAt.After(r.now) {
			continue
		}
		propertyID := ps.Property.ID
		r.inTx(ctx, "recruitment", e.ID, func(tx repository.GameTx, ob *outbox) (bool, error) {
			if p, err := tx.LockProperty(ctx, propertyID); err != nil || p == nil {
				return false, err
			}
			cur, err := tx.Recruitment(ctx, propertyID)
			if err != nil || cur == nil || cur.ID != e.ID || cur.FinishesAt.After(r.now) {
				return false, err
			}
			cfg, err := r.svc.catalog.Troop(cur.TroopID)
			if err != nil {
				return false, invariant("recruitment "+cur.ID, "%v", err)
			}
			if err := tx.AddTroops(ctx, propertyID, cur.TroopID, cur.Quantity, cfg.IsSecurity()); err != nil {
				return false, err
			}
			if err := tx.DeleteRecruitment(ctx, cur.ID); err != nil {
				return false, err
			}
			ob.add(r.userID, EventQueueCompleted, map[string]any{
				"kind":       "recruitment",
				"propertyId": propertyID,
				"troopId":    cur.TroopID,
				"quantity":   cur.Quantity,
			})
			return true, nil
		})
	}
}

func (r *run) resolveTrainings(ctx context.Context, state *model.UserState) {
	for _, ps := range state.Properties {
		e := ps.Training
		if e == nil || e.FinishesAt.After(r.now) {
			continue
		}
		r.inTx(ctx, "training", e.ID, func(tx repository.GameTx, ob *outbox) (bool, error) {
			entries, err := tx.Trainings(ctx, r.userID)
			if err != nil {
				return false, err
			}
			var cur *model.TrainingEntry
			for i := range entries {
				if entries[i].ID == e.ID {
					cur = &entries[i]
				}
			}
			if cur == nil || cur.FinishesAt.After(r.now) {
				return false, nil
			}
			levels, err := tx.TrainingLevels(ctx, r.userID)
			if err != nil {
				return false, err
			}
			if cur.TargetLevel != levels[cur.TrainingID]+1 {
				return false, invariant("training "+cur.ID, "target level %d but %s is at %d", cur.TargetLevel, cur.TrainingID, levels[cur.TrainingID])
			}
			if err := tx.SetTrainingLevel(ctx, r.userID, cur.TrainingID, cur.TargetLevel); err != nil {
				return false, err
			}
			if err := tx.DeleteTraining(ctx, cur.ID); err != nil {
				return false, err
			}
			ob.add(r.userID, EventQueueCompleted, map[string]any{
				"kind":       "training",
				"propertyId": cur.PropertyID,
				"trainingId": cur.TrainingID,
				"level":      cur.TargetLevel,
			})
			return true, nil
		})
	}
}
