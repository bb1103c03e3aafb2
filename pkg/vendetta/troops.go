package vendetta

import "math"

// TroopStats are a troop's values after training bonuses.
type TroopStats struct {
	Attack   int64 `json:"attack"`
	Defense  int64 `json:"defense"`
	Capacity int64 `json:"capacity"`
	Speed    int64 `json:"speed"`
	Salary   int64 `json:"salary"`
}

// trainingFactor is the multiplier a training level grants: 1 + sqrt(level)/10.
func trainingFactor(level int) float64 {
	if level <= 0 {
		return 1
	}
	return 1 + math.Sqrt(float64(level))/10
}

// TroopStats applies the owner's training levels to a troop's base values.
// Attack and defense multiply over every listed bonus training; smuggling
// raises carrying capacity (except for security troops) and lowers salary;
// the troop's speed training raises speed. All results are floored.
func (c *Catalog) TroopStats(cfg *TroopConfig, trainings map[string]int) TroopStats {
	attack := float64(cfg.Attack)
	for _, id := range cfg.BonusAttack {
		attack *= trainingFactor(trainings[id])
	}
	defense := float64(cfg.Defense)
	for _, id := range cfg.BonusDefense {
		defense *= trainingFactor(trainings[id])
	}

	capacity := float64(cfg.Capacity)
	smuggling := trainingFactor(trainings[TrainingSmuggling])
	if cfg.Type != TroopDefense && cfg.Capacity > 0 {
		capacity *= smuggling
	}

	speed := float64(cfg.Speed)
	if cfg.SpeedTraining != "" {
		speed *= trainingFactor(trainings[cfg.SpeedTraining])
	}

	salary := float64(cfg.Salary) / smuggling

	return TroopStats{
		Attack:   floorInt(attack),
		Defense:  floorInt(defense),
		Capacity: floorInt(capacity),
		Speed:    floorInt(speed),
		Salary:   floorInt(salary),
	}
}

// UnitCount is a quantity of one troop type.
type UnitCount struct {
	TroopID  string `json:"id"`
	Quantity int64  `json:"cantidad"`
}

// CountUnits sums quantities.
func CountUnits(units []UnitCount) int64 {
	var n int64
	for _, u := range units {
		n += u.Quantity
	}
	return n
}

// CarryCapacity is the aggregate loot capacity of a force.
func (c *Catalog) CarryCapacity(units []UnitCount, trainings map[string]int) int64 {
	var total int64
	for _, u := range units {
		cfg, ok := c.Troops[u.TroopID]
		if !ok || u.Quantity <= 0 {
			continue
		}
		total += c.TroopStats(cfg, trainings).Capacity * u.Quantity
	}
	return total
}

// MergeUnits adds b into a, keeping first-seen order and dropping zero entries.
func MergeUnits(a, b []UnitCount) []UnitCount {
	idx := make(map[string]int)
	var out []UnitCount
	for _, list := range [][]UnitCount{a, b} {
		for _, u := range list {
			if i, ok := idx[u.TroopID]; ok {
				out[i].Quantity += u.Quantity
				continue
			}
			idx[u.TroopID] = len(out)
			out = append(out, u)
		}
	}
	kept := out[:0]
	for _, u := range out {
		if u.Quantity > 0 {
			kept = append(kept, u)
		}
	}
	return kept
}
