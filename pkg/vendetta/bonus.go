package vendetta

import "sort"

// BonusPair is one configured entry of the troop bonus matrix.
type BonusPair struct {
	Attacker string  `json:"attacker"`
	Defender string  `json:"defender"`
	Factor   float64 `json:"factor"`
}

type pairKey struct {
	attacker string
	defender string
}

// BonusMatrix is a sparse (attacker troop, defender troop) -> factor mapping.
// Pairs that were never set are neutral (1.0).
type BonusMatrix struct {
	factors map[pairKey]float64
}

func NewBonusMatrix() *BonusMatrix {
	return &BonusMatrix{factors: make(map[pairKey]float64)}
}

// Set stores a factor. Setting a pair to 1 removes it.
func (b *BonusMatrix) Set(attacker, defender string, factor float64) {
	k := pairKey{attacker, defender}
	if factor == 1 {
		delete(b.factors, k)
		return
	}
	b.factors[k] = factor
}

// Factor returns the configured factor for a pair, or 1.
func (b *BonusMatrix) Factor(attacker, defender string) float64 {
	if b == nil {
		return 1
	}
	if f, ok := b.factors[pairKey{attacker, defender}]; ok {
		return f
	}
	return 1
}

func (b *BonusMatrix) Len() int {
	if b == nil {
		return 0
	}
	return len(b.factors)
}

// Pairs returns the configured entries sorted by attacker then defender.
func (b *BonusMatrix) Pairs() []BonusPair {
	if b == nil {
		return nil
	}
	out := make([]BonusPair, 0, len(b.factors))
	for k, f := range b.factors {
		out = append(out, BonusPair{Attacker: k.attacker, Defender: k.defender, Factor: f})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attacker != out[j].Attacker {
			return out[i].Attacker < out[j].Attacker
		}
		return out[i].Defender < out[j].Defender
	})
	return out
}

// WeightedFactor averages the attacker's factor over the opposing units,
// weighted by their remaining quantity. An empty opposition is neutral.
func (b *BonusMatrix) WeightedFactor(attacker string, opposing []*unit) float64 {
	if b.Len() == 0 {
		return 1
	}
	var total, weighted float64
	for _, u := range opposing {
		if u.quantity <= 0 {
			continue
		}
		q := float64(u.quantity)
		total += q
		weighted += q * b.Factor(attacker, u.id)
	}
	if total == 0 {
		return 1
	}
	return weighted / total
}
