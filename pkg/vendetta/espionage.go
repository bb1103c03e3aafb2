package vendetta

// BuildingIntel is one room seen by a successful spy.
type BuildingIntel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Intel is what a successful espionage mission reveals.
type Intel struct {
	Resources Resources       `json:"resources"`
	Buildings []BuildingIntel `json:"buildings"`
}

// EspionageDetails is the stored payload of an espionage report. Intel is
// null when the spies were caught.
type EspionageDetails struct {
	Combat *BattleReport `json:"combat"`
	Intel  *Intel        `json:"intel"`
}

// EspionageResult is the engine output for one espionage arrival.
type EspionageResult struct {
	Details   EspionageDetails
	Success   bool
	Returning []UnitCount
}

// ResolveEspionage lets the mission's spies fight every troop at the target.
// The spies succeed when they win, which includes finding the target
// undefended. Troops that are not spies travel along without fighting and
// always return.
func (c *Catalog) ResolveEspionage(attacker, defender Side, target Intel) (*EspionageResult, error) {
	var spies, escort []UnitCount
	for _, u := range attacker.Troops {
		cfg, err := c.Troop(u.TroopID)
		if err != nil {
			return nil, err
		}
		if cfg.Type == TroopSpy {
			spies = append(spies, u)
		} else {
			escort = append(escort, u)
		}
	}

	combat, err := c.ResolveBattle(Side{Troops: spies, Trainings: attacker.Trainings, PropertyCount: attacker.PropertyCount}, defender, nil)
	if err != nil {
		return nil, err
	}

	res := &EspionageResult{Details: EspionageDetails{Combat: combat}}
	if combat.Winner == WinnerAttacker {
		res.Success = true
		intel := target
		res.Details.Intel = &intel
	}
	res.Returning = MergeUnits(combat.AttackerSurvivors, escort)
	return res, nil
}
