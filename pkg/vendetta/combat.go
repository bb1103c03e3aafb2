package vendetta

import (
	"fmt"
	"sort"
)

// Winner is the outcome of a battle.
type Winner string

const (
	WinnerAttacker Winner = "attacker"
	WinnerDefender Winner = "defender"
	WinnerDraw     Winner = "draw"
)

// Side is one combatant: its force and the owner's modifiers.
type Side struct {
	Troops        []UnitCount
	Trainings     map[string]int
	PropertyCount int
}

// TroopRound is one troop line of a round.
type TroopRound struct {
	ID              string `json:"id"`
	Name            string `json:"nombre"`
	InitialQuantity int64  `json:"initialQuantity"`
	LostQuantity    int64  `json:"lostQuantity"`
}

// RoundSide is one side's view of a round.
type RoundSide struct {
	Troops               []TroopRound `json:"troops"`
	TotalAttack          float64      `json:"totalAttack"`
	TotalAttackWithBonus float64      `json:"totalAttackConBonus"`
	AttackPowerPercent   float64      `json:"poderAtaquePercent"`
	TotalDefense         float64      `json:"totalDefense"`
	DefenseMultiplier    float64      `json:"defenseMultiplier,omitempty"`
}

// Round is a single exchange of fire. Round 0 means nobody fought.
type Round struct {
	Round    int       `json:"round"`
	Attacker RoundSide `json:"attacker"`
	Defender RoundSide `json:"defender"`
}

// SideStats are a side's aggregate losses over the whole battle.
type SideStats struct {
	TroopsLost      int64     `json:"troopsLost"`
	PointsLost      int64     `json:"pointsLost"`
	ResourcesLost   Resources `json:"resourcesLost"`
	LootedResources Resources `json:"lootedResources"`
}

type FinalStats struct {
	Attacker SideStats `json:"attacker"`
	Defender SideStats `json:"defender"`
}

// BattleReport is the structured outcome renderers consume.
type BattleReport struct {
	Winner       Winner     `json:"winner"`
	Rounds       []Round    `json:"rounds"`
	FinalStats   FinalStats `json:"finalStats"`
	FinalMessage string     `json:"finalMessage"`

	// Survivors per side, in input order. Not part of the rendered report.
	AttackerSurvivors []UnitCount `json:"-"`
	DefenderSurvivors []UnitCount `json:"-"`
}

type unit struct {
	id       string
	cfg      *TroopConfig
	quantity int64
	attack   float64
	defense  float64
}

// buildArmy merges duplicate lines, drops empty ones, and applies training
// bonuses. Unknown troop ids are rejected.
func (c *Catalog) buildArmy(s Side) ([]*unit, error) {
	var army []*unit
	byID := make(map[string]*unit)
	for _, tc := range s.Troops {
		if tc.Quantity < 0 {
			return nil, fmt.Errorf("troop %s: negative quantity %d", tc.TroopID, tc.Quantity)
		}
		cfg, err := c.Troop(tc.TroopID)
		if err != nil {
			return nil, err
		}
		if u, ok := byID[tc.TroopID]; ok {
			u.quantity += tc.Quantity
			continue
		}
		st := c.TroopStats(cfg, s.Trainings)
		u := &unit{id: cfg.ID, cfg: cfg, quantity: tc.Quantity, attack: float64(st.Attack), defense: float64(st.Defense)}
		byID[tc.TroopID] = u
		army = append(army, u)
	}
	kept := army[:0]
	for _, u := range army {
		if u.quantity > 0 {
			kept = append(kept, u)
		}
	}
	return kept, nil
}

// DefenseMultiplier combines the defender's structures multiplicatively:
// Π(1 + level × DefenseBonus) over rooms that grant a bonus.
func (c *Catalog) DefenseMultiplier(defenses map[string]int) float64 {
	ids := make([]string, 0, len(defenses))
	for id := range defenses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	m := 1.0
	for _, id := range ids {
		cfg, ok := c.Rooms[id]
		if !ok || cfg.DefenseBonus <= 0 || defenses[id] <= 0 {
			continue
		}
		m *= 1 + float64(defenses[id])*cfg.DefenseBonus
	}
	return m
}

func alive(army []*unit) int64 {
	var n int64
	for _, u := range army {
		n += u.quantity
	}
	return n
}

func snapshot(army []*unit) []TroopRound {
	out := make([]TroopRound, len(army))
	for i, u := range army {
		out[i] = TroopRound{ID: u.id, Name: u.cfg.Name, InitialQuantity: u.quantity}
	}
	return out
}

// lossRatio is the share of a side destroyed in one round: everything when
// the incoming attack beats its defense, otherwise attack over defense.
func lossRatio(incomingAttack, ownDefense float64) float64 {
	if incomingAttack > ownDefense {
		return 1
	}
	if ownDefense == 0 {
		return 0
	}
	return incomingAttack / ownDefense
}

type sideTotals struct {
	base, withBonus, defense float64
}

func (c *Catalog) totals(army, opposing []*unit, pct, defenseMult float64) sideTotals {
	var t sideTotals
	for _, u := range army {
		q := float64(u.quantity)
		t.base += u.attack * q
		t.withBonus += u.attack * q * c.Bonus.WeightedFactor(u.id, opposing)
		t.defense += u.defense * q
	}
	t.withBonus *= pct / 100
	t.defense *= pct / 100 * defenseMult
	return t
}

func applyLosses(army []*unit, ratio float64, lines []TroopRound) {
	for i, u := range army {
		lost := floorInt(float64(u.quantity) * ratio)
		lost = min(max(lost, 0), u.quantity)
		u.quantity -= lost
		lines[i].LostQuantity = lost
	}
}

// ResolveBattle fights up to Rules.MaxRounds rounds between the attacker and
// the defender, whose defense is raised by its defensive rooms. Both sides
// fire simultaneously each round from their round-start strength. The result
// depends only on its inputs.
func (c *Catalog) ResolveBattle(attacker, defender Side, defenses map[string]int) (*BattleReport, error) {
	attArmy, err := c.buildArmy(attacker)
	if err != nil {
		return nil, fmt.Errorf("attacker: %w", err)
	}
	defArmy, err := c.buildArmy(defender)
	if err != nil {
		return nil, fmt.Errorf("defender: %w", err)
	}
	initialAtt := snapshot(attArmy)
	initialDef := snapshot(defArmy)

	attPct := AttackPowerPercent(attacker.PropertyCount, attacker.Trainings[TrainingHonor])
	defPct := AttackPowerPercent(defender.PropertyCount, defender.Trainings[TrainingHonor])
	defMult := c.DefenseMultiplier(defenses)

	report := &BattleReport{}
	for i := 1; i <= c.Rules.MaxRounds; i++ {
		if alive(attArmy) == 0 || alive(defArmy) == 0 {
			break
		}
		at := c.totals(attArmy, defArmy, attPct, 1)
		dt := c.totals(defArmy, attArmy, defPct, defMult)

		attLines := snapshot(attArmy)
		defLines := snapshot(defArmy)
		applyLosses(attArmy, lossRatio(dt.withBonus, at.defense), attLines)
		applyLosses(defArmy, lossRatio(at.withBonus, dt.defense), defLines)

		report.Rounds = append(report.Rounds, Round{
			Round: i,
			Attacker: RoundSide{
				Troops:               attLines,
				TotalAttack:          at.base,
				TotalAttackWithBonus: at.withBonus,
				AttackPowerPercent:   attPct,
				TotalDefense:         at.defense,
			},
			Defender: RoundSide{
				Troops:               defLines,
				TotalAttack:          dt.base,
				TotalAttackWithBonus: dt.withBonus,
				AttackPowerPercent:   defPct,
				TotalDefense:         dt.defense,
				DefenseMultiplier:    defMult,
			},
		})
	}

	if len(report.Rounds) == 0 {
		report.Rounds = append(report.Rounds, Round{
			Round:    0,
			Attacker: RoundSide{Troops: initialAtt, AttackPowerPercent: 100},
			Defender: RoundSide{Troops: initialDef, AttackPowerPercent: 100},
		})
	}

	report.FinalStats.Attacker = sideStats(initialAtt, attArmy)
	report.FinalStats.Defender = sideStats(initialDef, defArmy)
	report.AttackerSurvivors = survivors(attArmy)
	report.DefenderSurvivors = survivors(defArmy)

	attLeft, defLeft := alive(attArmy) > 0, alive(defArmy) > 0
	switch {
	case attLeft && !defLeft:
		report.Winner = WinnerAttacker
		report.FinalMessage = "The attacker won the battle."
	case !attLeft && defLeft:
		report.Winner = WinnerDefender
		report.FinalMessage = "The defender repelled the attack."
	case !attLeft && !defLeft:
		report.Winner = WinnerDraw
		report.FinalMessage = "Mutual annihilation. Nobody survived."
	default:
		report.Winner = WinnerDraw
		report.FinalMessage = fmt.Sprintf("The battle ended in a draw after %d rounds.", len(report.Rounds))
	}
	return report, nil
}

// sideStats tallies losses. ResourcesLost leaves alcohol out.
func sideStats(initial []TroopRound, army []*unit) SideStats {
	var s SideStats
	for i, u := range army {
		lost := initial[i].InitialQuantity - u.quantity
		s.TroopsLost += lost
		s.PointsLost += u.cfg.Points * lost
		cost := u.cfg.Cost
		cost.Alcohol = 0
		s.ResourcesLost = s.ResourcesLost.Add(cost.Mul(lost))
	}
	return s
}

func survivors(army []*unit) []UnitCount {
	out := make([]UnitCount, 0, len(army))
	for _, u := range army {
		if u.quantity > 0 {
			out = append(out, UnitCount{TroopID: u.id, Quantity: u.quantity})
		}
	}
	return out
}

// Survivors returns the units left on each side.
func (r *BattleReport) Survivors() (attacker, defender []UnitCount) {
	return r.AttackerSurvivors, r.DefenderSurvivors
}

// SetLoot records a transfer on both sides of the report.
func (r *BattleReport) SetLoot(loot Resources) {
	r.FinalStats.Attacker.LootedResources = loot
	r.FinalStats.Defender.LootedResources = loot
}
