package vendetta

// ComputeLoot decides what a victorious force carries away. Only the amount
// above safe storage is exposed; the total is bounded by capacity and split
// evenly across the exposed resources, each share capped at what is exposed.
func ComputeLoot(capacity int64, balances, safe Resources) Resources {
	var lootable Resources
	var total int64
	var exposed int
	for _, k := range AllResourceKinds {
		v := max(0, balances.Get(k)-safe.Get(k))
		lootable.Set(k, v)
		total += v
		if v > 0 {
			exposed++
		}
	}
	if capacity <= 0 || exposed == 0 {
		return Resources{}
	}
	take := min(capacity, total)
	share := float64(take) / float64(exposed)

	var loot Resources
	for _, k := range AllResourceKinds {
		v := lootable.Get(k)
		if v <= 0 {
			continue
		}
		loot.Set(k, floorInt(min(share, float64(v))))
	}
	return loot
}
