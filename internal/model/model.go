package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// User represents a player.
type User struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	LastAdvanceAt *time.Time `json:"last_advance_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Property is a building a user owns on the map.
type Property struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Name      string             `json:"name"`
	Coords    vendetta.Coords    `json:"coords"`
	Resources vendetta.Resources `json:"resources"`
	UpdatedAt time.Time          `json:"updated_at"` // last production integration
	CreatedAt time.Time          `json:"created_at"`
}

// Room is the built level of one room type in a property.
type Room struct {
	PropertyID string `json:"property_id"`
	RoomID     string `json:"room_id"`
	Level      int    `json:"level"`
}

// TroopCount is a stationed quantity. Security troops live in their own bucket.
type TroopCount struct {
	PropertyID string `json:"property_id"`
	TroopID    string `json:"troop_id"`
	Quantity   int64  `json:"quantity"`
	Security   bool   `json:"security"`
}

// ConstructionEntry is a queued room upgrade. Only the active entry has
// FinishesAt set; entries run in Seq order.
type ConstructionEntry struct {
	ID          string     `json:"id"`
	PropertyID  string     `json:"property_id"`
	RoomID      string     `json:"room_id"`
	TargetLevel int        `json:"target_level"`
	Seq         int        `json:"seq"`
	Duration    int64      `json:"duration"` // seconds
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishesAt  *time.Time `json:"finishes_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Started reports whether the entry is the active one.
func (e *ConstructionEntry) Started() bool {
	return e.FinishesAt != nil
}

// RecruitmentEntry is the single active recruitment of a property.
type RecruitmentEntry struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	TroopID    string    `json:"troop_id"`
	Quantity   int64     `json:"quantity"`
	StartedAt  time.Time `json:"started_at"`
	FinishesAt time.Time `json:"finishes_at"`
}

// TrainingEntry is an active training. Trainings are user-wide but started
// from a property.
type TrainingEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PropertyID  string    `json:"property_id"`
	TrainingID  string    `json:"training_id"`
	TargetLevel int       `json:"target_level"`
	StartedAt   time.Time `json:"started_at"`
	FinishesAt  time.Time `json:"finishes_at"`
}

// Mission is a force travelling between two map slots.
type Mission struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	OriginPropertyID string               `json:"origin_property_id"`
	Origin           vendetta.Coords      `json:"origin"`
	Target           vendetta.Coords      `json:"target"`
	Type             vendetta.MissionType `json:"type"`
	Troops           []vendetta.UnitCount `json:"troops"`
	Resources        vendetta.Resources   `json:"resources"`
	DepartedAt       time.Time            `json:"departed_at"`
	ArrivesAt        time.Time            `json:"arrives_at"`
	ReturnsAt        *time.Time           `json:"returns_at,omitempty"`
}

// IncomingAttack warns a defender about a hostile mission.
type IncomingAttack struct {
	ID               string               `json:"id"`
	MissionID        string               `json:"mission_id"`
	AttackerUserID   string               `json:"attacker_user_id"`
	DefenderUserID   string               `json:"defender_user_id"`
	TargetPropertyID string               `json:"target_property_id"`
	Type             vendetta.MissionType `json:"type"`
	ArrivesAt        time.Time            `json:"arrives_at"`
}

// BattleReport is a stored combat outcome. Details holds the engine report.
type BattleReport struct {
	ID               string          `json:"id"`
	AttackerUserID   string          `json:"attacker_user_id"`
	DefenderUserID   string          `json:"defender_user_id"`
	TargetPropertyID string          `json:"target_property_id"`
	Coords           vendetta.Coords `json:"coords"`
	Winner           string          `json:"winner"`
	Details          json.RawMessage `json:"details"`
	CreatedAt        time.Time       `json:"created_at"`
}

// EspionageReport is a stored espionage outcome. Details holds {combat, intel}.
type EspionageReport struct {
	ID               string          `json:"id"`
	AttackerUserID   string          `json:"attacker_user_id"`
	DefenderUserID   string          `json:"defender_user_id"`
	TargetPropertyID string          `json:"target_property_id"`
	Coords           vendetta.Coords `json:"coords"`
	Success          bool            `json:"success"`
	Details          json.RawMessage `json:"details"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Message is a system notice delivered to a user's inbox.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	ReportID  string    `json:"report_id,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message kinds.
const (
	MessageBattle    = "battle"
	MessageEspionage = "espionage"
	MessageTransport = "transport"
	MessageColony    = "colony"
)

// Score is a user's current ranking points.
type Score struct {
	UserID    string    `json:"user_id"`
	Rooms     int64     `json:"rooms"`
	Troops    int64     `json:"troops"`
	Trainings int64     `json:"trainings"`
	Honor     int64     `json:"honor"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PropertyState is one property with everything stationed or queued in it.
type PropertyState struct {
	Property      Property             `json:"property"`
	Rooms         map[string]int       `json:"rooms"`
	Troops        map[string]int64     `json:"troops"`
	Security      map[string]int64     `json:"security"`
	Constructions []ConstructionEntry  `json:"constructions"`
	Recruitment   *RecruitmentEntry    `json:"recruitment,omitempty"`
	Training      *TrainingEntry       `json:"training,omitempty"`
	Production    *vendetta.Production `json:"production,omitempty"`
	Capacity      vendetta.Resources   `json:"capacity"`
}

// Stationed merges both troop buckets into a single map.
func (p *PropertyState) Stationed() map[string]int64 {
	out := make(map[string]int64, len(p.Troops)+len(p.Security))
	for id, q := range p.Troops {
		out[id] += q
	}
	for id, q := range p.Security {
		out[id] += q
	}
	return out
}

// Units lists every stationed troop, offensive bucket first, sorted by id
// within each bucket.
func (p *PropertyState) Units() []vendetta.UnitCount {
	var out []vendetta.UnitCount
	for _, bucket := range []map[string]int64{p.Troops, p.Security} {
		out = vendetta.MergeUnits(out, sortedUnits(bucket))
	}
	return out
}

// UserState is the read shape of a user: everything the engine needs to
// advance them.
type UserState struct {
	User            User             `json:"user"`
	Properties      []PropertyState  `json:"properties"`
	Trainings       map[string]int   `json:"trainings"`
	Missions        []Mission        `json:"missions"`
	IncomingAttacks []IncomingAttack `json:"incoming_attacks"`
	Score           *Score           `json:"score,omitempty"`
}

// Property finds a property of the user by id.
func (s *UserState) Property(id string) *PropertyState {
	for i := range s.Properties {
		if s.Properties[i].Property.ID == id {
			return &s.Properties[i]
		}
	}
	return nil
}

// TrainingRunning reports whether any property is already training id.
func (s *UserState) TrainingRunning(id string) bool {
	for i := range s.Properties {
		if t := s.Properties[i].Training; t != nil && t.TrainingID == id {
			return true
		}
	}
	return false
}

func sortedUnits(bucket map[string]int64) []vendetta.UnitCount {
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]vendetta.UnitCount, 0, len(ids))
	for _, id := range ids {
		out = append(out, vendetta.UnitCount{TroopID: id, Quantity: bucket[id]})
	}
	return out
}
