package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// stateTx implements repository.GameTx over a transaction.
type stateTx struct {
	tx querier
}

func (s *stateTx) LockProperty(ctx context.Context, id string) (*model.Property, error) {
	p, err := scanProperty(s.tx.QueryRowContext(ctx,
		`SELECT `+propertyCols+` FROM properties WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock property: %w", err)
	}
	return p, nil
}

func (s *stateTx) PropertyAt(ctx context.Context, c vendetta.Coords) (*model.Property, error) {
	p, err := scanProperty(s.tx.QueryRowContext(ctx,
		`SELECT `+propertyCols+` FROM properties
		 WHERE ciudad = $1 AND barrio = $2 AND edificio = $3 FOR UPDATE`,
		c.Ciudad, c.Barrio, c.Edificio))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("property at %v: %w", c, err)
	}
	return p, nil
}

type levelRow struct {
	id    string
	level int
}

func scanLevel(s scanner) (levelRow, error) {
	var r levelRow
	return r, s.Scan(&r.id, &r.level)
}

func levelMap(rows []levelRow) map[string]int {
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.id] = r.level
	}
	return out
}

func (s *stateTx) RoomLevels(ctx context.Context, propertyID string) (map[string]int, error) {
	rows, err := queryList(ctx, s.tx, "room levels", scanLevel,
		`SELECT room_id, level FROM rooms WHERE property_id = $1`, propertyID)
	if err != nil {
		return nil, err
	}
	return levelMap(rows), nil
}

func (s *stateTx) Troops(ctx context.Context, propertyID string) (map[string]int64, map[string]int64, error) {
	rows, err := queryList(ctx, s.tx, "troops", func(sc scanner) (model.TroopCount, error) {
		var tc model.TroopCount
		return tc, sc.Scan(&tc.TroopID, &tc.Quantity, &tc.Security)
	}, `SELECT troop_id, quantity, security FROM troops WHERE property_id = $1 AND quantity > 0 FOR UPDATE`, propertyID)
	if err != nil {
		return nil, nil, err
	}
	offensive := make(map[string]int64)
	security := make(map[string]int64)
	for _, tc := range rows {
		if tc.Security {
			security[tc.TroopID] = tc.Quantity
		} else {
			offensive[tc.TroopID] = tc.Quantity
		}
	}
	return offensive, security, nil
}

func (s *stateTx) TrainingLevels(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := queryList(ctx, s.tx, "training levels", scanLevel,
		`SELECT training_id, level FROM training_levels WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return levelMap(rows), nil
}

func (s *stateTx) CountProperties(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count properties: %w", err)
	}
	return n, nil
}

func (s *stateTx) Constructions(ctx context.Context, propertyID string) ([]model.ConstructionEntry, error) {
	return queryList(ctx, s.tx, "constructions", scanConstruction,
		`SELECT `+constructionCols+` FROM construction_queue WHERE property_id = $1 ORDER BY seq FOR UPDATE`, propertyID)
}

func (s *stateTx) Recruitment(ctx context.Context, propertyID string) (*model.RecruitmentEntry, error) {
	e, err := scanRecruitment(s.tx.QueryRowContext(ctx,
		`SELECT `+recruitmentCols+` FROM recruitment_queue WHERE property_id = $1 FOR UPDATE`, propertyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recruitment: %w", err)
	}
	return &e, nil
}

func (s *stateTx) Trainings(ctx context.Context, userID string) ([]model.TrainingEntry, error) {
	return queryList(ctx, s.tx, "trainings", scanTraining,
		`SELECT `+trainingCols+` FROM training_queue WHERE user_id = $1 ORDER BY finishes_at`, userID)
}

func (s *stateTx) LockMission(ctx context.Context, id string) (*model.Mission, error) {
	m, err := scanMission(s.tx.QueryRowContext(ctx,
		`SELECT `+missionCols+` FROM missions WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock mission: %w", err)
	}
	return m, nil
}

func (s *stateTx) UpdateResources(ctx context.Context, propertyID string, res vendetta.Resources) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE properties SET armas = $2, municion = $3, alcohol = $4, dolares = $5 WHERE id = $1`,
		propertyID, res.Armas, res.Municion, res.Alcohol, res.Dolares)
	if err != nil {
		return fmt.Errorf("update resources: %w", err)
	}
	return nil
}

func (s *stateTx) SaveProduction(ctx context.Context, propertyID string, res vendetta.Resources, at time.Time) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE properties SET armas = $2, municion = $3, alcohol = $4, dolares = $5, updated_at = $6 WHERE id = $1`,
		propertyID, res.Armas, res.Municion, res.Alcohol, res.Dolares, at)
	if err != nil {
		return fmt.Errorf("save production: %w", err)
	}
	return nil
}

func (s *stateTx) SetRoomLevel(ctx context.Context, propertyID, roomID string, level int) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO rooms (property_id, room_id, level) VALUES ($1, $2, $3)
		 ON CONFLICT (property_id, room_id) DO UPDATE SET level = EXCLUDED.level`,
		propertyID, roomID, level)
	if err != nil {
		return fmt.Errorf("set room level: %w", err)
	}
	return nil
}

// AddTroops adjusts a stationed bucket. The quantity check constraint rejects
// a delta that would go below zero.
func (s *stateTx) AddTroops(ctx context.Context, propertyID, troopID string, delta int64, security bool) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO troops (property_id, troop_id, security, quantity) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (property_id, troop_id, security) DO UPDATE SET quantity = troops.quantity + EXCLUDED.quantity`,
		propertyID, troopID, security, delta)
	if err != nil {
		return fmt.Errorf("add troops: %w", err)
	}
	return nil
}

func (s *stateTx) CreateProperty(ctx context.Context, p *model.Property, rooms map[string]int) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO properties (id, user_id, name, ciudad, barrio, edificio, armas, municion, alcohol, dolares, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.Name, p.Coords.Ciudad, p.Coords.Barrio, p.Coords.Edificio,
		p.Resources.Armas, p.Resources.Municion, p.Resources.Alcohol, p.Resources.Dolares,
		p.UpdatedAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create property: %w", err)
	}
	for roomID, level := range rooms {
		if err := s.SetRoomLevel(ctx, p.ID, roomID, level); err != nil {
			return err
		}
	}
	return nil
}

func (s *stateTx) InsertConstruction(ctx context.Context, e *model.ConstructionEntry) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO construction_queue (id, property_id, room_id, target_level, seq, duration, started_at, finishes_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.PropertyID, e.RoomID, e.TargetLevel, e.Seq, e.Duration,
		nullTime(e.StartedAt), nullTime(e.FinishesAt), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert construction: %w", err)
	}
	return nil
}

func (s *stateTx) UpdateConstruction(ctx context.Context, e *model.ConstructionEntry) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE construction_queue
		 SET target_level = $2, seq = $3, duration = $4, started_at = $5, finishes_at = $6
		 WHERE id = $1`,
		e.ID, e.TargetLevel, e.Seq, e.Duration, nullTime(e.StartedAt), nullTime(e.FinishesAt))
	if err != nil {
		return fmt.Errorf("update construction: %w", err)
	}
	return nil
}

func (s *stateTx) DeleteConstruction(ctx context.Context, id string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM construction_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete construction: %w", err)
	}
	return nil
}

func (s *stateTx) InsertRecruitment(ctx context.Context, e *model.RecruitmentEntry) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO recruitment_queue (id, property_id, troop_id, quantity, started_at, finishes_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.PropertyID, e.TroopID, e.Quantity, e.StartedAt, e.FinishesAt)
	if err != nil {
		return fmt.Errorf("insert recruitment: %w", err)
	}
	return nil
}

func (s *stateTx) DeleteRecruitment(ctx context.Context, id string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM recruitment_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete recruitment: %w", err)
	}
	return nil
}

func (s *stateTx) InsertTraining(ctx context.Context, e *model.TrainingEntry) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO training_queue (id, user_id, property_id, training_id, target_level, started_at, finishes_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.PropertyID, e.TrainingID, e.TargetLevel, e.StartedAt, e.FinishesAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "training_queue_property_id_key" {
			return fmt.Errorf("insert training: %w", repository.ErrPropertyBusy)
		}
		return fmt.Errorf("insert training: %w", repository.ErrTrainingQueued)
	}
	if err != nil {
		return fmt.Errorf("insert training: %w", err)
	}
	return nil
}

func (s *stateTx) DeleteTraining(ctx context.Context, id string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM training_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete training: %w", err)
	}
	return nil
}

func (s *stateTx) SetTrainingLevel(ctx context.Context, userID, trainingID string, level int) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO training_levels (user_id, training_id, level) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, training_id) DO UPDATE SET level = EXCLUDED.level`,
		userID, trainingID, level)
	if err != nil {
		return fmt.Errorf("set training level: %w", err)
	}
	return nil
}

func (s *stateTx) InsertMission(ctx context.Context, m *model.Mission) error {
	troops, res, err := marshalMission(m)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx,
		`INSERT INTO missions (id, user_id, origin_property_id,
			origin_ciudad, origin_barrio, origin_edificio,
			target_ciudad, target_barrio, target_edificio,
			type, troops, resources, departed_at, arrives_at, returns_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.UserID, m.OriginPropertyID,
		m.Origin.Ciudad, m.Origin.Barrio, m.Origin.Edificio,
		m.Target.Ciudad, m.Target.Barrio, m.Target.Edificio,
		string(m.Type), troops, res, m.DepartedAt, m.ArrivesAt, nullTime(m.ReturnsAt))
	if err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}
	return nil
}

func (s *stateTx) UpdateMission(ctx context.Context, m *model.Mission) error {
	troops, res, err := marshalMission(m)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx,
		`UPDATE missions SET type = $2, troops = $3, resources = $4, arrives_at = $5, returns_at = $6 WHERE id = $1`,
		m.ID, string(m.Type), troops, res, m.ArrivesAt, nullTime(m.ReturnsAt))
	if err != nil {
		return fmt.Errorf("update mission: %w", err)
	}
	return nil
}

func (s *stateTx) DeleteMission(ctx context.Context, id string) (bool, error) {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete mission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete mission: %w", err)
	}
	return n > 0, nil
}

func (s *stateTx) InsertIncomingAttack(ctx context.Context, a *model.IncomingAttack) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO incoming_attacks (id, mission_id, attacker_user_id, defender_user_id, target_property_id, type, arrives_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.MissionID, a.AttackerUserID, a.DefenderUserID, a.TargetPropertyID, string(a.Type), a.ArrivesAt)
	if err != nil {
		return fmt.Errorf("insert incoming attack: %w", err)
	}
	return nil
}

func (s *stateTx) DeleteIncomingAttackByMission(ctx context.Context, missionID string) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM incoming_attacks WHERE mission_id = $1`, missionID); err != nil {
		return fmt.Errorf("delete incoming attack: %w", err)
	}
	return nil
}

func (s *stateTx) InsertBattleReport(ctx context.Context, r *model.BattleReport) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO battle_reports (id, attacker_user_id, defender_user_id, target_property_id,
			ciudad, barrio, edificio, winner, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.AttackerUserID, r.DefenderUserID, r.TargetPropertyID,
		r.Coords.Ciudad, r.Coords.Barrio, r.Coords.Edificio, r.Winner, []byte(r.Details), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert battle report: %w", err)
	}
	return nil
}

func (s *stateTx) InsertEspionageReport(ctx context.Context, r *model.EspionageReport) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO espionage_reports (id, attacker_user_id, defender_user_id, target_property_id,
			ciudad, barrio, edificio, success, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.AttackerUserID, r.DefenderUserID, r.TargetPropertyID,
		r.Coords.Ciudad, r.Coords.Barrio, r.Coords.Edificio, r.Success, []byte(r.Details), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert espionage report: %w", err)
	}
	return nil
}

func (s *stateTx) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, kind, subject, report_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.UserID, m.Kind, m.Subject, nullStr(m.ReportID), m.Body, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *stateTx) AddHonor(ctx context.Context, userID string, points int64) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO scores (user_id, honor, total) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO UPDATE SET honor = scores.honor + EXCLUDED.honor, total = scores.total + EXCLUDED.honor`,
		userID, points)
	if err != nil {
		return fmt.Errorf("add honor: %w", err)
	}
	return nil
}

// UpsertScore stores the recomputed buckets and refreshes Honor and Total
// from the stored row.
func (s *stateTx) UpsertScore(ctx context.Context, sc *model.Score) error {
	err := s.tx.QueryRowContext(ctx,
		`INSERT INTO scores (user_id, rooms, troops, trainings, total, updated_at)
		 VALUES ($1, $2, $3, $4, $2::bigint + $3::bigint + $4::bigint, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			rooms = EXCLUDED.rooms, troops = EXCLUDED.troops, trainings = EXCLUDED.trainings,
			total = EXCLUDED.rooms + EXCLUDED.troops + EXCLUDED.trainings + scores.honor,
			updated_at = EXCLUDED.updated_at
		 RETURNING honor, total`,
		sc.UserID, sc.Rooms, sc.Troops, sc.Trainings, sc.UpdatedAt,
	).Scan(&sc.Honor, &sc.Total)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

func (s *stateTx) TouchUser(ctx context.Context, userID string, advancedAt time.Time) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE users SET last_seen_at = $2, last_advance_at = $2 WHERE id = $1`, userID, advancedAt)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}
