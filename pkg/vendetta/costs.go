package vendetta

import "math"

// RoomCost is the price of building a room up to level. Levels 0 and 1
// cost the base price; higher levels scale with level squared.
func RoomCost(cfg *RoomConfig, level int) Resources {
	return scaledCost(cfg.Cost, level)
}

// TrainingCost follows the same curve as rooms.
func TrainingCost(cfg *TrainingConfig, level int) Resources {
	return scaledCost(cfg.Cost, level)
}

func scaledCost(base Resources, level int) Resources {
	if level <= 1 {
		return Resources{Armas: base.Armas, Municion: base.Municion, Dolares: base.Dolares}
	}
	f := float64(level) * float64(level)
	return Resources{
		Armas:    floorInt(float64(base.Armas) * f),
		Municion: floorInt(float64(base.Municion) * f),
		Dolares:  floorInt(float64(base.Dolares) * f),
	}
}

// ConstructionTime returns the seconds needed to reach level. The boss office
// scales on its own; every other room is sped up by the office level.
func ConstructionTime(cfg *RoomConfig, level, officeLevel int) int64 {
	if level <= 0 {
		return cfg.Duration
	}
	if cfg.ID == RoomBossOffice {
		if level == 1 {
			return cfg.Duration
		}
		l := float64(level)
		return floorInt(l * l * float64(cfg.Duration) / (l - 1))
	}
	l := float64(level)
	t := l * l / float64(max(1, officeLevel)) * float64(cfg.Duration)
	return max(5, floorInt(t))
}

// TrainingTime returns the seconds needed to reach level, sped up by the school.
func TrainingTime(cfg *TrainingConfig, level, schoolLevel int) int64 {
	l := float64(level)
	t := float64(cfg.Duration) * l * l / float64(max(1, schoolLevel))
	return max(5, floorInt(t))
}

// RecruitmentTime returns the seconds needed to recruit qty units. yardLevel is
// the training yard for regular troops and the security room for DEFENSA troops.
func RecruitmentTime(cfg *TroopConfig, qty int64, yardLevel int) int64 {
	if qty <= 0 {
		return 0
	}
	perUnit := float64(cfg.Duration) / float64(max(1, yardLevel))
	return max(1, int64(math.Floor(perUnit*float64(qty))))
}

// RecruitmentCost is the per-unit price times qty.
func RecruitmentCost(cfg *TroopConfig, qty int64) Resources {
	if qty <= 0 {
		return Resources{}
	}
	return cfg.Cost.Mul(qty)
}
