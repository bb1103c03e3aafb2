package service

import (
	"errors"
	"fmt"

	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// SimulatedSide is one side of a what-if battle.
type SimulatedSide struct {
	Troops        []vendetta.UnitCount `json:"troops"`
	Trainings     map[string]int       `json:"trainings,omitempty"`
	PropertyCount int                  `json:"propertyCount,omitempty"`
}

// SimulateRequest describes a battle to run without touching stored state.
type SimulateRequest struct {
	Attacker SimulatedSide  `json:"attacker"`
	Defender SimulatedSide  `json:"defender"`
	Defenses map[string]int `json:"defenses,omitempty"`
}

// Simulator runs battles against the catalog only.
type Simulator struct {
	catalog *vendetta.Catalog
}

// NewSimulator creates a Simulator.
func NewSimulator(catalog *vendetta.Catalog) *Simulator {
	return &Simulator{catalog: catalog}
}

func (s *Simulator) side(in SimulatedSide) (vendetta.Side, error) {
	for _, u := range in.Troops {
		if u.Quantity < 0 {
			return vendetta.Side{}, ErrInvalidQuantity
		}
	}
	for id, level := range in.Trainings {
		if _, err := s.catalog.Training(id); err != nil || level < 0 {
			return vendetta.Side{}, fmt.Errorf("%w: training %s", ErrUnknownItem, id)
		}
	}
	return vendetta.Side{Troops: in.Troops, Trainings: in.Trainings, PropertyCount: max(1, in.PropertyCount)}, nil
}

// Simulate resolves the battle and returns the full report.
func (s *Simulator) Simulate(req SimulateRequest) (*vendetta.BattleReport, error) {
	att, err := s.side(req.Attacker)
	if err != nil {
		return nil, err
	}
	def, err := s.side(req.Defender)
	if err != nil {
		return nil, err
	}
	for id, level := range req.Defenses {
		if _, err := s.catalog.Room(id); err != nil || level < 0 {
			return nil, fmt.Errorf("%w: room %s", ErrUnknownItem, id)
		}
	}
	report, err := s.catalog.ResolveBattle(att, def, req.Defenses)
	if errors.Is(err, vendetta.ErrUnknownTroop) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownItem, err)
	}
	return report, err
}
