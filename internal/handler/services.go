package handler

import (
	"context"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/service"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// StateService advances and returns a user's state.
type StateService interface {
	Advance(ctx context.Context, userID string) (*model.UserState, error)
	Catalog() *vendetta.Catalog
}

// ActionService applies player commands.
type ActionService interface {
	SubmitConstruction(ctx context.Context, userID, propertyID, roomID string) (*model.ConstructionEntry, error)
	CancelConstruction(ctx context.Context, userID, entryID string) error
	SubmitRecruitment(ctx context.Context, userID, propertyID, troopID string, qty int64) (*model.RecruitmentEntry, error)
	SubmitTraining(ctx context.Context, userID, propertyID, trainingID string) (*model.TrainingEntry, error)
	SendMission(ctx context.Context, userID string, req service.MissionRequest) (*model.Mission, error)
	CancelMission(ctx context.Context, userID, missionID string) (*model.Mission, error)
}

// UserRegistrar records a player row for an authenticated user id.
type UserRegistrar interface {
	Upsert(ctx context.Context, id, displayName string) (*model.User, error)
}

// Sweeper advances every user on demand.
type Sweeper interface {
	AdvanceAll(ctx context.Context) (service.SweepResult, error)
}

// BattleSimulator runs what-if battles.
type BattleSimulator interface {
	Simulate(req service.SimulateRequest) (*vendetta.BattleReport, error)
}
