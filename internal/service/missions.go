package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// MissionRequest is the payload for sending troops from a property.
type MissionRequest struct {
	OriginPropertyID string               `json:"originPropertyId"`
	Target           vendetta.Coords      `json:"target"`
	Type             vendetta.MissionType `json:"type"`
	Troops           []vendetta.UnitCount `json:"troops"`
	Resources        vendetta.Resources   `json:"resources"`
}

func invalidMission(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMission, fmt.Sprintf(format, args...))
}

// validate checks the parts of a request that need no stored state.
func (req *MissionRequest) validate(cat *vendetta.Catalog) error {
	if !req.Type.Valid() {
		return invalidMission("type %q cannot be sent", req.Type)
	}
	if req.Target.Ciudad <= 0 || req.Target.Barrio <= 0 || req.Target.Edificio <= 0 {
		return invalidMission("target coordinates must be positive")
	}
	if req.Resources.HasNegative() {
		return invalidMission("resources must not be negative")
	}
	if !req.Resources.IsZero() && req.Type != vendetta.MissionTransport && req.Type != vendetta.MissionOccupy {
		return invalidMission("only transports and occupations carry resources")
	}
	req.Troops = vendetta.MergeUnits(nil, req.Troops)
	if len(req.Troops) == 0 {
		return invalidMission("no troops")
	}
	var spies, settlers bool
	for _, u := range req.Troops {
		cfg, err := cat.Troop(u.TroopID)
		if err != nil {
			return ErrUnknownItem
		}
		if cfg.IsSecurity() {
			return invalidMission("%s guards its property and cannot leave", u.TroopID)
		}
		spies = spies || cfg.Type == vendetta.TroopSpy
		settlers = settlers || cfg.Type == vendetta.TroopOccupy
	}
	if req.Type == vendetta.MissionSpy && !spies {
		return invalidMission("espionage needs a spy")
	}
	if req.Type == vendetta.MissionOccupy && !settlers {
		return invalidMission("occupation needs an occupation troop")
	}
	return nil
}

// checkTarget validates the slot the mission is heading to.
func checkTarget(userID string, typ vendetta.MissionType, target *model.Property) error {
	switch typ {
	case vendetta.MissionOccupy:
		if target != nil {
			return invalidMission("slot is already owned")
		}
	case vendetta.MissionDefend:
		if target == nil || target.UserID != userID {
			return invalidMission("can only defend your own property")
		}
	case vendetta.MissionTransport:
		if target == nil {
			return invalidMission("nobody to deliver to")
		}
	case vendetta.MissionAttack, vendetta.MissionSpy:
		if target == nil {
			return invalidMission("slot is empty")
		}
		if target.UserID == userID {
			return invalidMission("target is your own property")
		}
	}
	return nil
}

// SendMission dispatches troops and resources from a property.
func (s *ActionService) SendMission(ctx context.Context, userID string, req MissionRequest) (*model.Mission, error) {
	cat := s.catalog()
	if err := req.validate(cat); err != nil {
		return nil, err
	}
	if _, err := s.game.ForceAdvance(ctx, userID); err != nil {
		return nil, err
	}

	var mission *model.Mission
	var incoming *model.IncomingAttack
	err := s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		origin, _, err := s.ownedProperty(ctx, tx, userID, req.OriginPropertyID)
		if err != nil {
			return err
		}
		if origin.Coords == req.Target {
			return invalidMission("target is the origin")
		}
		target, err := tx.PropertyAt(ctx, req.Target)
		if err != nil {
			return err
		}
		if err := checkTarget(userID, req.Type, target); err != nil {
			return err
		}

		off, _, err := tx.Troops(ctx, origin.ID)
		if err != nil {
			return err
		}
		for _, u := range req.Troops {
			if off[u.TroopID] < u.Quantity {
				return ErrInsufficientTroops
			}
		}
		trainings, err := tx.TrainingLevels(ctx, userID)
		if err != nil {
			return err
		}
		if cat.CarryCapacity(req.Troops, trainings) < req.Resources.Total() {
			return invalidMission("cargo exceeds carry capacity")
		}

		distance := vendetta.Distance(origin.Coords, req.Target)
		cost := req.Resources
		cost.Dolares += cat.MissionCost(req.Troops, trainings, distance)
		if err := pay(ctx, tx, origin, cost); err != nil {
			return err
		}
		for _, u := range req.Troops {
			if err := tx.AddTroops(ctx, origin.ID, u.TroopID, -u.Quantity, false); err != nil {
				return err
			}
		}

		now := s.game.clock.Now()
		travel := vendetta.TravelDuration(distance, cat.FleetSpeed(req.Troops, trainings))
		mission = &model.Mission{
			ID:               uuid.New().String(),
			UserID:           userID,
			OriginPropertyID: origin.ID,
			Origin:           origin.Coords,
			Target:           req.Target,
			Type:             req.Type,
			Troops:           req.Troops,
			Resources:        req.Resources,
			DepartedAt:       now,
			ArrivesAt:        addSeconds(now, travel),
		}
		if err := tx.InsertMission(ctx, mission); err != nil {
			return err
		}

		if req.Type.Hostile() && target != nil && target.UserID != userID {
			incoming = &model.IncomingAttack{
				ID:               uuid.New().String(),
				MissionID:        mission.ID,
				AttackerUserID:   userID,
				DefenderUserID:   target.UserID,
				TargetPropertyID: target.ID,
				Type:             req.Type,
				ArrivesAt:        mission.ArrivesAt,
			}
			return tx.InsertIncomingAttack(ctx, incoming)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("userId", userID).Str("missionId", mission.ID).Str("type", string(mission.Type)).
		Time("arrivesAt", mission.ArrivesAt).Msg("Mission sent")
	if incoming != nil {
		s.game.broadcaster.BroadcastUserEvent(incoming.DefenderUserID, EventIncomingAttack, incoming)
	}
	s.after(ctx, userID)
	return mission, nil
}

// CancelMission turns an outbound mission around. It travels back as long as
// it has been out.
func (s *ActionService) CancelMission(ctx context.Context, userID, missionID string) (*model.Mission, error) {
	if _, err := s.game.ForceAdvance(ctx, userID); err != nil {
		return nil, err
	}

	var m *model.Mission
	err := s.game.store.RunInTx(ctx, func(tx repository.GameTx) error {
		var err error
		m, err = tx.LockMission(ctx, missionID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound
		}
		if m.UserID != userID {
			return ErrNotOwner
		}
		now := s.game.clock.Now()
		if m.Type == vendetta.MissionReturn || !m.ArrivesAt.After(now) {
			return ErrMissionArrived
		}
		if err := tx.DeleteIncomingAttackByMission(ctx, m.ID); err != nil {
			return err
		}
		returns := now.Add(now.Sub(m.DepartedAt))
		m.Type = vendetta.MissionReturn
		m.ReturnsAt = &returns
		return tx.UpdateMission(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("userId", userID).Str("missionId", missionID).Msg("Mission recalled")
	s.after(ctx, userID)
	return m, nil
}
