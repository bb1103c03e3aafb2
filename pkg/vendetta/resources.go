package vendetta

import "math"

// ResourceKind identifies one of the four property balances.
type ResourceKind string

const (
	Armas    ResourceKind = "armas"
	Municion ResourceKind = "municion"
	Alcohol  ResourceKind = "alcohol"
	Dolares  ResourceKind = "dolares"
)

// AllResourceKinds lists the balances in their canonical order.
var AllResourceKinds = []ResourceKind{Armas, Municion, Alcohol, Dolares}

// Resources is a bundle of the four property balances.
type Resources struct {
	Armas    int64 `json:"armas"`
	Municion int64 `json:"municion"`
	Alcohol  int64 `json:"alcohol"`
	Dolares  int64 `json:"dolares"`
}

// Get returns the amount of one resource kind.
func (r Resources) Get(k ResourceKind) int64 {
	switch k {
	case Armas:
		return r.Armas
	case Municion:
		return r.Municion
	case Alcohol:
		return r.Alcohol
	case Dolares:
		return r.Dolares
	}
	return 0
}

// Set replaces the amount of one resource kind.
func (r *Resources) Set(k ResourceKind, v int64) {
	switch k {
	case Armas:
		r.Armas = v
	case Municion:
		r.Municion = v
	case Alcohol:
		r.Alcohol = v
	case Dolares:
		r.Dolares = v
	}
}

func (r Resources) Add(o Resources) Resources {
	return Resources{
		Armas:    r.Armas + o.Armas,
		Municion: r.Municion + o.Municion,
		Alcohol:  r.Alcohol + o.Alcohol,
		Dolares:  r.Dolares + o.Dolares,
	}
}

func (r Resources) Sub(o Resources) Resources {
	return Resources{
		Armas:    r.Armas - o.Armas,
		Municion: r.Municion - o.Municion,
		Alcohol:  r.Alcohol - o.Alcohol,
		Dolares:  r.Dolares - o.Dolares,
	}
}

// Mul scales every balance by n.
func (r Resources) Mul(n int64) Resources {
	return Resources{
		Armas:    r.Armas * n,
		Municion: r.Municion * n,
		Alcohol:  r.Alcohol * n,
		Dolares:  r.Dolares * n,
	}
}

// Covers reports whether r holds at least cost of every resource.
func (r Resources) Covers(cost Resources) bool {
	for _, k := range AllResourceKinds {
		if r.Get(k) < cost.Get(k) {
			return false
		}
	}
	return true
}

// ClampTo caps every balance at the matching capacity.
func (r Resources) ClampTo(capacity Resources) Resources {
	var out Resources
	for _, k := range AllResourceKinds {
		out.Set(k, min(r.Get(k), capacity.Get(k)))
	}
	return out
}

// Floor0 raises negative balances to zero.
func (r Resources) Floor0() Resources {
	var out Resources
	for _, k := range AllResourceKinds {
		out.Set(k, max(0, r.Get(k)))
	}
	return out
}

// HasNegative reports whether any balance is below zero.
func (r Resources) HasNegative() bool {
	for _, k := range AllResourceKinds {
		if r.Get(k) < 0 {
			return true
		}
	}
	return false
}

func (r Resources) Total() int64 {
	return r.Armas + r.Municion + r.Alcohol + r.Dolares
}

func (r Resources) IsZero() bool {
	return r == Resources{}
}

// Rates holds hourly amounts per resource; fractional values are kept until integration.
type Rates struct {
	Armas    float64 `json:"armas"`
	Municion float64 `json:"municion"`
	Alcohol  float64 `json:"alcohol"`
	Dolares  float64 `json:"dolares"`
}

func (r Rates) Get(k ResourceKind) float64 {
	switch k {
	case Armas:
		return r.Armas
	case Municion:
		return r.Municion
	case Alcohol:
		return r.Alcohol
	case Dolares:
		return r.Dolares
	}
	return 0
}

func floorInt(v float64) int64 {
	return int64(math.Floor(v))
}
