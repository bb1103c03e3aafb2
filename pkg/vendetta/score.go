package vendetta

import "math"

// AttackPowerPercent is the share of combat power a player fields. It falls off
// as the player holds more properties; honor training softens the fall-off.
func AttackPowerPercent(propertyCount, honorLevel int) float64 {
	n := float64(max(1, propertyCount) - 1)
	exp := 4.5 - float64(honorLevel)/10
	return 100 / (1 + math.Pow(n, exp)/1e7)
}

// Score is a user's point breakdown.
type Score struct {
	Rooms     int64 `json:"rooms"`
	Troops    int64 `json:"troops"`
	Trainings int64 `json:"trainings"`
	Total     int64 `json:"total"`
}

// ScoreInput is what a user owns, flattened across properties.
type ScoreInput struct {
	RoomLevels []RoomLevel
	Troops     []UnitCount // both buckets, all properties
	Trainings  map[string]int
}

// RoomLevel is one built room.
type RoomLevel struct {
	RoomID string `json:"roomId"`
	Level  int    `json:"level"`
}

// Score totals room, troop and training points. Unknown ids score nothing.
func (c *Catalog) Score(in ScoreInput) Score {
	var s Score
	for _, r := range in.RoomLevels {
		if cfg, ok := c.Rooms[r.RoomID]; ok {
			s.Rooms += cfg.Points * int64(r.Level)
		}
	}
	for _, u := range in.Troops {
		if cfg, ok := c.Troops[u.TroopID]; ok {
			s.Troops += cfg.Points * u.Quantity
		}
	}
	for id, lvl := range in.Trainings {
		if cfg, ok := c.Trainings[id]; ok {
			s.Trainings += cfg.Points * int64(lvl)
		}
	}
	s.Total = s.Rooms + s.Troops + s.Trainings
	return s
}
