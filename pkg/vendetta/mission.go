package vendetta

import "math"

// MissionType is the purpose of a troop movement.
type MissionType string

const (
	MissionAttack    MissionType = "ATAQUE"
	MissionDefend    MissionType = "DEFENDER"
	MissionTransport MissionType = "TRANSPORTE"
	MissionSpy       MissionType = "ESPIONAJE"
	MissionOccupy    MissionType = "OCUPAR"
	MissionReturn    MissionType = "REGRESO"
)

// Valid reports whether t is a mission a player may send.
func (t MissionType) Valid() bool {
	switch t {
	case MissionAttack, MissionDefend, MissionTransport, MissionSpy, MissionOccupy:
		return true
	}
	return false
}

// Hostile reports whether the target owner sees the mission as incoming.
func (t MissionType) Hostile() bool {
	return t == MissionAttack || t == MissionSpy || t == MissionTransport
}

// Coords locate a property on the map.
type Coords struct {
	Ciudad   int `json:"ciudad"`
	Barrio   int `json:"barrio"`
	Edificio int `json:"edificio"`
}

const buildingsPerRow = 17

// Position projects coords onto the flat travel grid.
func (c Coords) Position() (altura, anchura float64) {
	altura = float64(c.Barrio-1)*15 + math.Ceil(float64(c.Edificio)/buildingsPerRow)
	row := math.Floor(float64(c.Edificio-1) / buildingsPerRow)
	anchura = float64(c.Ciudad-1)*buildingsPerRow + (float64(c.Edificio) - row*buildingsPerRow)
	return altura, anchura
}

// Distance is the straight-line distance between two properties on the grid.
func Distance(a, b Coords) float64 {
	a1, w1 := a.Position()
	a2, w2 := b.Position()
	return math.Hypot(a2-a1, w2-w1)
}

const defaultFleetSpeed = 1000

// FleetSpeed is the speed of the slowest unit in the force.
func (c *Catalog) FleetSpeed(units []UnitCount, trainings map[string]int) int64 {
	slowest := int64(-1)
	for _, u := range units {
		cfg, ok := c.Troops[u.TroopID]
		if !ok || u.Quantity <= 0 {
			continue
		}
		s := c.TroopStats(cfg, trainings).Speed
		if slowest < 0 || s < slowest {
			slowest = s
		}
	}
	if slowest < 0 {
		return defaultFleetSpeed
	}
	return slowest
}

const maxTravelSeconds = 30 * 24 * 3600

// TravelDuration returns the one-way travel time in seconds.
func TravelDuration(distance float64, speed int64) int64 {
	if speed <= 0 {
		return maxTravelSeconds
	}
	d := math.Ceil(distance)
	secs := 0.21989 * math.Pow(float64(speed), -0.2) * math.Pow(d, 0.2) * 86400
	return max(10, int64(math.Round(secs)))
}

// MissionCost is the dollar price of sending units over distance.
func (c *Catalog) MissionCost(units []UnitCount, trainings map[string]int, distance float64) int64 {
	d := math.Pow(math.Ceil(distance), 0.8)
	var total float64
	for _, u := range units {
		cfg, ok := c.Troops[u.TroopID]
		if !ok || u.Quantity <= 0 {
			continue
		}
		salary := c.TroopStats(cfg, trainings).Salary
		total += float64(u.Quantity) * float64(salary) / 10 * d
	}
	return floorInt(total)
}
