package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/vendetta/api/internal/model"
)

// ReportRepo reads stored battle and espionage reports.
type ReportRepo struct {
	db *sql.DB
}

// NewReportRepo creates a ReportRepo.
func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

const battleCols = `id, attacker_user_id, defender_user_id, target_property_id, ciudad, barrio, edificio, winner, details, created_at`

func scanBattle(s scanner) (*model.BattleReport, error) {
	var r model.BattleReport
	var details []byte
	err := s.Scan(&r.ID, &r.AttackerUserID, &r.DefenderUserID, &r.TargetPropertyID,
		&r.Coords.Ciudad, &r.Coords.Barrio, &r.Coords.Edificio, &r.Winner, &details, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Details = details
	return &r, nil
}

// ListBattleReports returns the newest reports where the user attacked or defended.
func (r *ReportRepo) ListBattleReports(ctx context.Context, userID string, limit int) ([]model.BattleReport, error) {
	return queryList(ctx, r.db, "battle reports", func(s scanner) (model.BattleReport, error) {
		br, err := scanBattle(s)
		if err != nil {
			return model.BattleReport{}, err
		}
		return *br, nil
	}, `SELECT `+battleCols+` FROM battle_reports
		 WHERE attacker_user_id = $1 OR defender_user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, userID, limit)
}

// FindBattleReport returns a report by id.
func (r *ReportRepo) FindBattleReport(ctx context.Context, id string) (*model.BattleReport, error) {
	br, err := scanBattle(r.db.QueryRowContext(ctx, `SELECT `+battleCols+` FROM battle_reports WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find battle report: %w", err)
	}
	return br, nil
}

func scanEspionage(s scanner) (model.EspionageReport, error) {
	var er model.EspionageReport
	var details []byte
	err := s.Scan(&er.ID, &er.AttackerUserID, &er.DefenderUserID, &er.TargetPropertyID,
		&er.Coords.Ciudad, &er.Coords.Barrio, &er.Coords.Edificio, &er.Success, &details, &er.CreatedAt)
	er.Details = details
	return er, err
}

// ListEspionageReports returns the newest espionage reports sent by the user.
func (r *ReportRepo) ListEspionageReports(ctx context.Context, userID string, limit int) ([]model.EspionageReport, error) {
	return queryList(ctx, r.db, "espionage reports", scanEspionage,
		`SELECT id, attacker_user_id, defender_user_id, target_property_id, ciudad, barrio, edificio, success, details, created_at
		 FROM espionage_reports
		 WHERE attacker_user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, userID, limit)
}
