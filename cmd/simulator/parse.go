package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// parsePairs splits "a=1,b=2" into ordered id/value pairs.
func parsePairs(s string) ([]string, []int64, error) {
	var ids []string
	var values []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, raw, ok := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, nil, fmt.Errorf("expected id=value, got %q", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("invalid value for %s: %q", id, raw)
		}
		ids = append(ids, id)
		values = append(values, n)
	}
	return ids, values, nil
}

func parseUnits(s string) ([]vendetta.UnitCount, error) {
	ids, values, err := parsePairs(s)
	if err != nil {
		return nil, err
	}
	units := make([]vendetta.UnitCount, len(ids))
	for i := range ids {
		units[i] = vendetta.UnitCount{TroopID: ids[i], Quantity: values[i]}
	}
	return units, nil
}

func parseLevels(s string) (map[string]int, error) {
	ids, values, err := parsePairs(s)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	levels := make(map[string]int, len(ids))
	for i := range ids {
		levels[ids[i]] = int(values[i])
	}
	return levels, nil
}

func formatSeconds(secs int64) string {
	return (time.Duration(secs) * time.Second).String()
}
