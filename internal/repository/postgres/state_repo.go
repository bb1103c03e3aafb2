package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// StateRepo loads user state snapshots and runs engine transactions.
type StateRepo struct {
	db *sql.DB
}

// NewStateRepo creates a StateRepo.
func NewStateRepo(db *sql.DB) *StateRepo {
	return &StateRepo{db: db}
}

// RunInTx runs fn inside a single transaction.
func (r *StateRepo) RunInTx(ctx context.Context, fn func(tx repository.GameTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&stateTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const propertyCols = `id, user_id, name, ciudad, barrio, edificio, armas, municion, alcohol, dolares, updated_at, created_at`

func scanProperty(s scanner) (*model.Property, error) {
	var p model.Property
	err := s.Scan(&p.ID, &p.UserID, &p.Name,
		&p.Coords.Ciudad, &p.Coords.Barrio, &p.Coords.Edificio,
		&p.Resources.Armas, &p.Resources.Municion, &p.Resources.Alcohol, &p.Resources.Dolares,
		&p.UpdatedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const constructionCols = `id, property_id, room_id, target_level, seq, duration, started_at, finishes_at, created_at`

func scanConstruction(s scanner) (model.ConstructionEntry, error) {
	var e model.ConstructionEntry
	var started, finishes sql.NullTime
	err := s.Scan(&e.ID, &e.PropertyID, &e.RoomID, &e.TargetLevel, &e.Seq, &e.Duration, &started, &finishes, &e.CreatedAt)
	e.StartedAt = timePtr(started)
	e.FinishesAt = timePtr(finishes)
	return e, err
}

const recruitmentCols = `id, property_id, troop_id, quantity, started_at, finishes_at`

func scanRecruitment(s scanner) (model.RecruitmentEntry, error) {
	var e model.RecruitmentEntry
	err := s.Scan(&e.ID, &e.PropertyID, &e.TroopID, &e.Quantity, &e.StartedAt, &e.FinishesAt)
	return e, err
}

const trainingCols = `id, user_id, property_id, training_id, target_level, started_at, finishes_at`

func scanTraining(s scanner) (model.TrainingEntry, error) {
	var e model.TrainingEntry
	err := s.Scan(&e.ID, &e.UserID, &e.PropertyID, &e.TrainingID, &e.TargetLevel, &e.StartedAt, &e.FinishesAt)
	return e, err
}

const missionCols = `id, user_id, origin_property_id,
	origin_ciudad, origin_barrio, origin_edificio,
	target_ciudad, target_barrio, target_edificio,
	type, troops, resources, departed_at, arrives_at, returns_at`

func scanMission(s scanner) (*model.Mission, error) {
	var m model.Mission
	var troops, res []byte
	var returns sql.NullTime
	err := s.Scan(&m.ID, &m.UserID, &m.OriginPropertyID,
		&m.Origin.Ciudad, &m.Origin.Barrio, &m.Origin.Edificio,
		&m.Target.Ciudad, &m.Target.Barrio, &m.Target.Edificio,
		&m.Type, &troops, &res, &m.DepartedAt, &m.ArrivesAt, &returns)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(troops, &m.Troops); err != nil {
		return nil, fmt.Errorf("decode mission troops: %w", err)
	}
	if err := json.Unmarshal(res, &m.Resources); err != nil {
		return nil, fmt.Errorf("decode mission resources: %w", err)
	}
	m.ReturnsAt = timePtr(returns)
	return &m, nil
}

// LoadUserState reads everything the engine needs for one user. It returns
// nil, nil for an unknown user.
func (r *StateRepo) LoadUserState(ctx context.Context, userID string) (*model.UserState, error) {
	u, err := findUser(ctx, r.db, userID)
	if err != nil || u == nil {
		return nil, err
	}
	st := &model.UserState{User: *u}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+propertyCols+` FROM properties WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}
	byID := make(map[string]int)
	var ids []string
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan property: %w", err)
		}
		byID[p.ID] = len(st.Properties)
		ids = append(ids, p.ID)
		st.Properties = append(st.Properties, model.PropertyState{
			Property: *p,
			Rooms:    make(map[string]int),
			Troops:   make(map[string]int64),
			Security: make(map[string]int64),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}

	if err := r.loadPropertyDetails(ctx, st, ids, byID); err != nil {
		return nil, err
	}

	trainings, err := (&stateTx{tx: r.db}).TrainingLevels(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.Trainings = trainings

	entries, err := (&stateTx{tx: r.db}).Trainings(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if idx, ok := byID[entries[i].PropertyID]; ok {
			e := entries[i]
			st.Properties[idx].Training = &e
		}
	}

	if st.Missions, err = r.loadMissions(ctx, userID); err != nil {
		return nil, err
	}
	if st.IncomingAttacks, err = r.loadIncoming(ctx, userID); err != nil {
		return nil, err
	}
	if st.Score, err = r.loadScore(ctx, userID); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *StateRepo) loadPropertyDetails(ctx context.Context, st *model.UserState, ids []string, byID map[string]int) error {
	if len(ids) == 0 {
		return nil
	}
	at := func(propertyID string) *model.PropertyState { return &st.Properties[byID[propertyID]] }

	rooms, err := queryList(ctx, r.db, "rooms", func(s scanner) (model.Room, error) {
		var rm model.Room
		return rm, s.Scan(&rm.PropertyID, &rm.RoomID, &rm.Level)
	}, `SELECT property_id, room_id, level FROM rooms WHERE property_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, rm := range rooms {
		at(rm.PropertyID).Rooms[rm.RoomID] = rm.Level
	}

	troops, err := queryList(ctx, r.db, "troops", func(s scanner) (model.TroopCount, error) {
		var tc model.TroopCount
		return tc, s.Scan(&tc.PropertyID, &tc.TroopID, &tc.Quantity, &tc.Security)
	}, `SELECT property_id, troop_id, quantity, security FROM troops
		 WHERE property_id = ANY($1) AND quantity > 0`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, tc := range troops {
		if tc.Security {
			at(tc.PropertyID).Security[tc.TroopID] = tc.Quantity
		} else {
			at(tc.PropertyID).Troops[tc.TroopID] = tc.Quantity
		}
	}

	constructions, err := queryList(ctx, r.db, "constructions", scanConstruction,
		`SELECT `+constructionCols+` FROM construction_queue
		 WHERE property_id = ANY($1) ORDER BY property_id, seq`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, e := range constructions {
		ps := at(e.PropertyID)
		ps.Constructions = append(ps.Constructions, e)
	}

	recruitments, err := queryList(ctx, r.db, "recruitments", scanRecruitment,
		`SELECT `+recruitmentCols+` FROM recruitment_queue WHERE property_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return err
	}
	for i := range recruitments {
		at(recruitments[i].PropertyID).Recruitment = &recruitments[i]
	}
	return nil
}

func (r *StateRepo) loadMissions(ctx context.Context, userID string) ([]model.Mission, error) {
	return queryList(ctx, r.db, "missions", func(s scanner) (model.Mission, error) {
		m, err := scanMission(s)
		if err != nil {
			return model.Mission{}, err
		}
		return *m, nil
	}, `SELECT `+missionCols+` FROM missions WHERE user_id = $1 ORDER BY arrives_at, id`, userID)
}

func (r *StateRepo) loadIncoming(ctx context.Context, userID string) ([]model.IncomingAttack, error) {
	return queryList(ctx, r.db, "incoming attacks", func(s scanner) (model.IncomingAttack, error) {
		var a model.IncomingAttack
		return a, s.Scan(&a.ID, &a.MissionID, &a.AttackerUserID, &a.DefenderUserID, &a.TargetPropertyID, &a.Type, &a.ArrivesAt)
	}, `SELECT id, mission_id, attacker_user_id, defender_user_id, target_property_id, type, arrives_at
		 FROM incoming_attacks WHERE defender_user_id = $1 ORDER BY arrives_at`, userID)
}

func (r *StateRepo) loadScore(ctx context.Context, userID string) (*model.Score, error) {
	var s model.Score
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, rooms, troops, trainings, honor, total, updated_at FROM scores WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.Rooms, &s.Troops, &s.Trainings, &s.Honor, &s.Total, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	return &s, nil
}

// marshalMission encodes the JSONB columns of a mission.
func marshalMission(m *model.Mission) (troops, res []byte, err error) {
	units := m.Troops
	if units == nil {
		units = []vendetta.UnitCount{}
	}
	if troops, err = json.Marshal(units); err != nil {
		return nil, nil, fmt.Errorf("encode mission troops: %w", err)
	}
	if res, err = json.Marshal(m.Resources); err != nil {
		return nil, nil, fmt.Errorf("encode mission resources: %w", err)
	}
	return troops, res, nil
}
