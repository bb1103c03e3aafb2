package repository

import (
	"context"
	"time"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// UserRepository defines user data operations.
type UserRepository interface {
	Upsert(ctx context.Context, id, displayName string) (*model.User, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// GameStore loads the read shape of a user and runs transactional writes.
type GameStore interface {
	// LoadUserState returns nil, nil for an unknown user.
	LoadUserState(ctx context.Context, userID string) (*model.UserState, error)
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx GameTx) error) error
}

// GameTx is the write shape of the engine. Every method runs inside one
// transaction; reads that precede a write lock the rows they return.
type GameTx interface {
	// Reads. Missing rows return nil, nil.
	LockProperty(ctx context.Context, id string) (*model.Property, error)
	PropertyAt(ctx context.Context, c vendetta.Coords) (*model.Property, error)
	RoomLevels(ctx context.Context, propertyID string) (map[string]int, error)
	Troops(ctx context.Context, propertyID string) (offensive, security map[string]int64, err error)
	TrainingLevels(ctx context.Context, userID string) (map[string]int, error)
	CountProperties(ctx context.Context, userID string) (int, error)
	Constructions(ctx context.Context, propertyID string) ([]model.ConstructionEntry, error)
	Recruitment(ctx context.Context, propertyID string) (*model.RecruitmentEntry, error)
	Trainings(ctx context.Context, userID string) ([]model.TrainingEntry, error)
	LockMission(ctx context.Context, id string) (*model.Mission, error)

	// Property writes.
	UpdateResources(ctx context.Context, propertyID string, res vendetta.Resources) error
	SaveProduction(ctx context.Context, propertyID string, res vendetta.Resources, at time.Time) error
	SetRoomLevel(ctx context.Context, propertyID, roomID string, level int) error
	AddTroops(ctx context.Context, propertyID, troopID string, delta int64, security bool) error
	CreateProperty(ctx context.Context, p *model.Property, rooms map[string]int) error

	// Queues.
	InsertConstruction(ctx context.Context, e *model.ConstructionEntry) error
	UpdateConstruction(ctx context.Context, e *model.ConstructionEntry) error
	DeleteConstruction(ctx context.Context, id string) error
	InsertRecruitment(ctx context.Context, e *model.RecruitmentEntry) error
	DeleteRecruitment(ctx context.Context, id string) error
	InsertTraining(ctx context.Context, e *model.TrainingEntry) error
	DeleteTraining(ctx context.Context, id string) error
	SetTrainingLevel(ctx context.Context, userID, trainingID string, level int) error

	// Missions.
	InsertMission(ctx context.Context, m *model.Mission) error
	UpdateMission(ctx context.Context, m *model.Mission) error
	DeleteMission(ctx context.Context, id string) (bool, error)
	InsertIncomingAttack(ctx context.Context, a *model.IncomingAttack) error
	DeleteIncomingAttackByMission(ctx context.Context, missionID string) error

	// Reports and bookkeeping.
	InsertBattleReport(ctx context.Context, r *model.BattleReport) error
	InsertEspionageReport(ctx context.Context, r *model.EspionageReport) error
	InsertMessage(ctx context.Context, m *model.Message) error
	AddHonor(ctx context.Context, userID string, points int64) error
	UpsertScore(ctx context.Context, s *model.Score) error
	TouchUser(ctx context.Context, userID string, advancedAt time.Time) error
}

// ReportRepository defines the read side of battle and espionage reports.
type ReportRepository interface {
	ListBattleReports(ctx context.Context, userID string, limit int) ([]model.BattleReport, error)
	FindBattleReport(ctx context.Context, id string) (*model.BattleReport, error)
	ListEspionageReports(ctx context.Context, userID string, limit int) ([]model.EspionageReport, error)
}

// MessageRepository defines inbox read operations.
type MessageRepository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Message, error)
}

// AdvanceCache coordinates advancement across processes (Redis).
type AdvanceCache interface {
	// AcquireUserLock returns a token when the lock was taken, or "" when another
	// holder has it.
	AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ReleaseUserLock(ctx context.Context, userID, token string) error
	// AllowAdvance returns false when the user was advanced within the window.
	AllowAdvance(ctx context.Context, userID string, window time.Duration) (bool, error)
	ScheduleDue(ctx context.Context, userID string, at time.Time) error
	ClearDue(ctx context.Context, userID string) error
}
