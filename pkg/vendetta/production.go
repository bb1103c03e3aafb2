package vendetta

import (
	"fmt"
	"sort"
)

// Production is the hourly economy of one property.
type Production struct {
	Gross       Rates `json:"gross"`
	Consumption Rates `json:"consumption"`
	Net         Rates `json:"net"`
}

// PropertyProduction computes the hourly production of a property from its
// room levels. Rooms that pay for their output in alcohol are fed in
// FeedPriority order out of the gross alcohol production; an under-fed room
// produces only what the remaining alcohol pays for. Stationed troops cost
// salary × UpkeepPerSalary dollars per hour.
func (c *Catalog) PropertyProduction(rooms map[string]int, stationed map[string]int64, trainings map[string]int) (Production, error) {
	var p Production

	type consumer struct {
		cfg *RoomConfig
		out float64
	}
	var consumers []consumer

	for _, id := range c.roomIDs {
		cfg := c.Rooms[id]
		level := rooms[id]
		if level <= 0 || cfg.production == nil || cfg.Produces == "" {
			continue
		}
		out, err := cfg.Output(level)
		if err != nil {
			return Production{}, fmt.Errorf("room %s: %w", id, err)
		}
		if cfg.ConsumesAlcohol() {
			consumers = append(consumers, consumer{cfg: cfg, out: out})
			continue
		}
		addRate(&p.Gross, cfg.Produces, out)
	}

	sort.SliceStable(consumers, func(i, j int) bool {
		return consumers[i].cfg.FeedPriority < consumers[j].cfg.FeedPriority
	})

	available := p.Gross.Alcohol
	for _, cons := range consumers {
		need := cons.out*cons.cfg.AlcoholPerUnit + cons.cfg.AlcoholBase
		out := cons.out
		if available >= need {
			available -= need
			addRate(&p.Consumption, Alcohol, need)
		} else {
			out = max(0, (available-cons.cfg.AlcoholBase)/cons.cfg.AlcoholPerUnit)
			addRate(&p.Consumption, Alcohol, available)
			available = 0
		}
		addRate(&p.Gross, cons.cfg.Produces, out)
	}

	if c.Rules.UpkeepPerSalary > 0 {
		for _, id := range c.troopIDs {
			qty := stationed[id]
			if qty <= 0 {
				continue
			}
			st := c.TroopStats(c.Troops[id], trainings)
			addRate(&p.Consumption, Dolares, float64(qty)*float64(st.Salary)*c.Rules.UpkeepPerSalary)
		}
	}

	p.Net = Rates{
		Armas:    p.Gross.Armas - p.Consumption.Armas,
		Municion: p.Gross.Municion - p.Consumption.Municion,
		Alcohol:  p.Gross.Alcohol - p.Consumption.Alcohol,
		Dolares:  p.Gross.Dolares - p.Consumption.Dolares,
	}
	return p, nil
}

func addRate(r *Rates, k ResourceKind, v float64) {
	switch k {
	case Armas:
		r.Armas += v
	case Municion:
		r.Municion += v
	case Alcohol:
		r.Alcohol += v
	case Dolares:
		r.Dolares += v
	}
}

// StorageCapacity returns the per-resource cap: the base plus the matching
// storage room's level times the per-level increment.
func (c *Catalog) StorageCapacity(rooms map[string]int) Resources {
	var out Resources
	for _, k := range AllResourceKinds {
		v := c.Rules.BaseStorage
		if id := c.StorageRoomFor(k); id != "" {
			v += int64(rooms[id]) * c.Rules.StoragePerLevel
		}
		out.Set(k, v)
	}
	return out
}

// SafeStorage returns the per-resource amount that cannot be looted. It only
// exists for resources whose storage room has been built.
func (c *Catalog) SafeStorage(rooms map[string]int) Resources {
	var out Resources
	for _, k := range AllResourceKinds {
		id := c.StorageRoomFor(k)
		if id == "" {
			continue
		}
		level, built := rooms[id]
		if !built {
			continue
		}
		out.Set(k, c.Rules.BaseStorage+int64(level)*c.Rules.StoragePerLevel)
	}
	return out
}

// Integrate applies elapsedSeconds of net production to balance. Each result
// is floored and kept within [0, capacity]; a balance already above capacity
// is not reduced by production.
func Integrate(balance Resources, net Rates, capacity Resources, elapsedSeconds int64) Resources {
	if elapsedSeconds <= 0 {
		return balance
	}
	var out Resources
	for _, k := range AllResourceKinds {
		cur := balance.Get(k)
		gained := net.Get(k) / 3600 * float64(elapsedSeconds)
		next := floorInt(float64(cur) + gained)
		limit := capacity.Get(k)
		switch {
		case gained >= 0 && cur >= limit:
			next = cur
		case next > limit:
			next = limit
		}
		if next < 0 {
			next = 0
		}
		out.Set(k, next)
	}
	return out
}
