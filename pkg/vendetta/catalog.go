package vendetta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// TroopType classifies a troop and decides which bucket it is stationed in.
type TroopType string

const (
	TroopDefense   TroopType = "DEFENSA"
	TroopAttack    TroopType = "ATAQUE"
	TroopTransport TroopType = "TRANSPORTE"
	TroopSpy       TroopType = "ESPIONAJE"
	TroopOccupy    TroopType = "OCUPAR"
)

// Well-known room ids the formulas depend on.
const (
	RoomBossOffice    = "oficina_del_jefe"
	RoomSchool        = "escuela_especializacion"
	RoomTrainingYard  = "campo_de_entrenamiento"
	RoomSecurity      = "seguridad"
	RoomWeaponsStore  = "almacen_de_armas"
	RoomAmmoStore     = "deposito_de_municion"
	RoomAlcoholStore  = "almacen_de_alcohol"
	RoomSafe          = "caja_fuerte"
	RoomTurret        = "torreta_de_fuego_automatico"
	RoomHiddenMines   = "minas_ocultas"
	TrainingHonor     = "honor"
	TrainingSmuggling = "contrabando"
	TrainingRoutes    = "rutas"
	TrainingErrands   = "encargos"
)

// RequirementKind says whether a requirement targets a room or a training.
type RequirementKind string

const (
	RequireRoom     RequirementKind = "room"
	RequireTraining RequirementKind = "training"
)

// Requirement is one edge of the unlock graph: the owner needs ID at Level.
type Requirement struct {
	Kind  RequirementKind `json:"kind"`
	ID    string          `json:"id"`
	Level int             `json:"level"`
}

// RoomConfig describes a buildable room.
type RoomConfig struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Cost              Resources     `json:"cost"`
	Duration          int64         `json:"duration"` // seconds at level 1
	Points            int64         `json:"points"`
	Produces          ResourceKind  `json:"produces,omitempty"`
	ProductionFormula string        `json:"productionFormula,omitempty"`
	Stores            ResourceKind  `json:"stores,omitempty"`
	DefenseBonus      float64       `json:"defenseBonus,omitempty"` // defender defense multiplier per level
	AlcoholPerUnit    float64       `json:"alcoholPerUnit,omitempty"`
	AlcoholBase       float64       `json:"alcoholBase,omitempty"`
	FeedPriority      int           `json:"feedPriority,omitempty"`
	Requirements      []Requirement `json:"requirements,omitempty"`

	production *Formula
}

// ConsumesAlcohol reports whether the room's output is paid for in alcohol.
func (r *RoomConfig) ConsumesAlcohol() bool {
	return r.AlcoholPerUnit > 0
}

// Output is the gross hourly production at level. Rooms without a
// production formula yield 0.
func (r *RoomConfig) Output(level int) (float64, error) {
	if level <= 0 || r.production == nil || r.Produces == "" {
		return 0, nil
	}
	return r.production.Eval(level)
}

// TroopConfig describes a recruitable troop.
type TroopConfig struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          TroopType     `json:"type"`
	Attack        int64         `json:"attack"`
	Defense       int64         `json:"defense"`
	Capacity      int64         `json:"capacity"`
	Speed         int64         `json:"speed"`
	Salary        int64         `json:"salary"`
	Cost          Resources     `json:"cost"`
	Duration      int64         `json:"duration"` // seconds per unit
	Points        int64         `json:"points"`
	BonusAttack   []string      `json:"bonusAttack,omitempty"`
	BonusDefense  []string      `json:"bonusDefense,omitempty"`
	SpeedTraining string        `json:"speedTraining,omitempty"`
	Requirements  []Requirement `json:"requirements,omitempty"`
}

// IsSecurity reports whether the troop is stationed in the security bucket.
func (t *TroopConfig) IsSecurity() bool {
	return t.Type == TroopDefense
}

// TrainingConfig describes a user-wide training.
type TrainingConfig struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Cost         Resources     `json:"cost"`
	Duration     int64         `json:"duration"`
	Points       int64         `json:"points"`
	Requirements []Requirement `json:"requirements,omitempty"`
}

// Rules are the global tunables.
type Rules struct {
	MaxConstructionQueue int     `json:"maxConstructionQueue"`
	BaseStorage          int64   `json:"baseStorage"`
	StoragePerLevel      int64   `json:"storagePerLevel"`
	MaxRounds            int     `json:"maxRounds"`
	ColonyResources      int64   `json:"colonyResources"`
	ColonyRoomLevel      int     `json:"colonyRoomLevel"`
	UpkeepPerSalary      float64 `json:"upkeepPerSalary"`
}

// DefaultRules returns the standard game rules.
func DefaultRules() Rules {
	return Rules{
		MaxConstructionQueue: 5,
		BaseStorage:          10000,
		StoragePerLevel:      150000,
		MaxRounds:            5,
		ColonyResources:      10000,
		ColonyRoomLevel:      1,
	}
}

// Catalog is the validated, immutable set of configurations the engine runs against.
type Catalog struct {
	Rooms     map[string]*RoomConfig
	Troops    map[string]*TroopConfig
	Trainings map[string]*TrainingConfig
	Bonus     *BonusMatrix
	Rules     Rules

	roomIDs     []string
	troopIDs    []string
	trainingIDs []string
	unlockOrder []string
}

var (
	ErrDuplicateID     = errors.New("duplicate configuration id")
	ErrUnknownRef      = errors.New("unknown configuration reference")
	ErrRequirementLoop = errors.New("requirement graph has a cycle")
	ErrUnknownTroop    = errors.New("unknown troop")
	ErrUnknownRoom     = errors.New("unknown room")
	ErrUnknownTraining = errors.New("unknown training")
)

// NewCatalog validates the configurations, compiles production formulas, and
// computes the unlock order. The inputs are copied.
func NewCatalog(rooms []RoomConfig, troops []TroopConfig, trainings []TrainingConfig, bonus *BonusMatrix, rules Rules) (*Catalog, error) {
	c := &Catalog{
		Rooms:     make(map[string]*RoomConfig, len(rooms)),
		Troops:    make(map[string]*TroopConfig, len(troops)),
		Trainings: make(map[string]*TrainingConfig, len(trainings)),
		Bonus:     bonus,
		Rules:     rules,
	}
	if c.Bonus == nil {
		c.Bonus = NewBonusMatrix()
	}
	if c.Rules.MaxRounds <= 0 {
		c.Rules.MaxRounds = DefaultRules().MaxRounds
	}

	for i := range rooms {
		r := rooms[i]
		if _, dup := c.Rooms[r.ID]; dup {
			return nil, fmt.Errorf("room %q: %w", r.ID, ErrDuplicateID)
		}
		if r.ProductionFormula != "" {
			f, err := CompileFormula(r.ProductionFormula)
			if err != nil {
				return nil, fmt.Errorf("room %q: %w", r.ID, err)
			}
			r.production = f
		}
		c.Rooms[r.ID] = &r
		c.roomIDs = append(c.roomIDs, r.ID)
	}
	for i := range troops {
		t := troops[i]
		if _, dup := c.Troops[t.ID]; dup {
			return nil, fmt.Errorf("troop %q: %w", t.ID, ErrDuplicateID)
		}
		c.Troops[t.ID] = &t
		c.troopIDs = append(c.troopIDs, t.ID)
	}
	for i := range trainings {
		t := trainings[i]
		if _, dup := c.Trainings[t.ID]; dup {
			return nil, fmt.Errorf("training %q: %w", t.ID, ErrDuplicateID)
		}
		c.Trainings[t.ID] = &t
		c.trainingIDs = append(c.trainingIDs, t.ID)
	}

	for _, p := range c.Bonus.Pairs() {
		if c.Troops[p.Attacker] == nil || c.Troops[p.Defender] == nil {
			return nil, fmt.Errorf("bonus %s->%s: %w", p.Attacker, p.Defender, ErrUnknownRef)
		}
	}

	order, err := c.resolveUnlockOrder()
	if err != nil {
		return nil, err
	}
	c.unlockOrder = order
	return c, nil
}

// Room returns a room configuration by id.
func (c *Catalog) Room(id string) (*RoomConfig, error) {
	r, ok := c.Rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, id)
	}
	return r, nil
}

// Troop returns a troop configuration by id.
func (c *Catalog) Troop(id string) (*TroopConfig, error) {
	t, ok := c.Troops[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTroop, id)
	}
	return t, nil
}

// Training returns a training configuration by id.
func (c *Catalog) Training(id string) (*TrainingConfig, error) {
	t, ok := c.Trainings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTraining, id)
	}
	return t, nil
}

// RoomIDs returns room ids in configuration order.
func (c *Catalog) RoomIDs() []string { return c.roomIDs }

// TroopIDs returns troop ids in configuration order.
func (c *Catalog) TroopIDs() []string { return c.troopIDs }

// TrainingIDs returns training ids in configuration order.
func (c *Catalog) TrainingIDs() []string { return c.trainingIDs }

// UnlockOrder returns every room and training node ("room:<id>" / "training:<id>")
// in an order where requirements come before their dependents.
func (c *Catalog) UnlockOrder() []string { return c.unlockOrder }

// StorageRoomFor returns the room id that raises capacity for a resource, or "".
func (c *Catalog) StorageRoomFor(k ResourceKind) string {
	for _, id := range c.roomIDs {
		if c.Rooms[id].Stores == k {
			return id
		}
	}
	return ""
}

type catalogFile struct {
	Rooms     []RoomConfig     `json:"rooms"`
	Troops    []TroopConfig    `json:"troops"`
	Trainings []TrainingConfig `json:"trainings"`
	Bonuses   []BonusPair      `json:"bonuses"`
	Rules     *Rules           `json:"rules,omitempty"`
}

// LoadCatalog reads a JSON catalog. Missing rules fall back to DefaultRules.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	rules := DefaultRules()
	if f.Rules != nil {
		rules = *f.Rules
	}
	bonus := NewBonusMatrix()
	for _, p := range f.Bonuses {
		bonus.Set(p.Attacker, p.Defender, p.Factor)
	}
	return NewCatalog(f.Rooms, f.Troops, f.Trainings, bonus, rules)
}

func nodeKey(kind RequirementKind, id string) string {
	return string(kind) + ":" + id
}

// resolveUnlockOrder runs Kahn's algorithm over rooms, trainings and troop
// requirements. Ties are broken by node name so the order is stable.
func (c *Catalog) resolveUnlockOrder() ([]string, error) {
	deps := make(map[string][]string)
	indeg := make(map[string]int)
	addNode := func(k string) {
		if _, ok := indeg[k]; !ok {
			indeg[k] = 0
		}
	}
	check := func(owner string, reqs []Requirement) error {
		for _, req := range reqs {
			switch req.Kind {
			case RequireRoom:
				if c.Rooms[req.ID] == nil {
					return fmt.Errorf("%s requires room %q: %w", owner, req.ID, ErrUnknownRef)
				}
			case RequireTraining:
				if c.Trainings[req.ID] == nil {
					return fmt.Errorf("%s requires training %q: %w", owner, req.ID, ErrUnknownRef)
				}
			default:
				return fmt.Errorf("%s: requirement kind %q: %w", owner, req.Kind, ErrUnknownRef)
			}
		}
		return nil
	}

	for _, id := range c.roomIDs {
		addNode(nodeKey(RequireRoom, id))
	}
	for _, id := range c.trainingIDs {
		addNode(nodeKey(RequireTraining, id))
	}
	link := func(owner string, reqs []Requirement) {
		for _, req := range reqs {
			from := nodeKey(req.Kind, req.ID)
			if from == owner {
				// a room gated on its own earlier level is not a cycle
				continue
			}
			deps[from] = append(deps[from], owner)
			indeg[owner]++
		}
	}
	for _, id := range c.roomIDs {
		owner := nodeKey(RequireRoom, id)
		if err := check(owner, c.Rooms[id].Requirements); err != nil {
			return nil, err
		}
		link(owner, c.Rooms[id].Requirements)
	}
	for _, id := range c.trainingIDs {
		owner := nodeKey(RequireTraining, id)
		if err := check(owner, c.Trainings[id].Requirements); err != nil {
			return nil, err
		}
		link(owner, c.Trainings[id].Requirements)
	}
	for _, id := range c.troopIDs {
		if err := check("troop:"+id, c.Troops[id].Requirements); err != nil {
			return nil, err
		}
	}

	var ready []string
	for k, d := range indeg {
		if d == 0 {
			ready = append(ready, k)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indeg))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		next := deps[n]
		sort.Strings(next)
		for _, m := range next {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
				sort.Strings(ready)
			}
		}
	}
	if len(order) != len(indeg) {
		return nil, ErrRequirementLoop
	}
	return order, nil
}
