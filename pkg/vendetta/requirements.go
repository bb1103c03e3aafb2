package vendetta

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRequirementsNotMet = errors.New("requirements not met")

// CheckRequirements verifies every requirement against the given levels and
// lists all that are missing.
func CheckRequirements(reqs []Requirement, rooms, trainings map[string]int) error {
	var missing []string
	for _, req := range reqs {
		var have int
		switch req.Kind {
		case RequireRoom:
			have = rooms[req.ID]
		case RequireTraining:
			have = trainings[req.ID]
		}
		if have < req.Level {
			missing = append(missing, fmt.Sprintf("%s %s level %d (have %d)", req.Kind, req.ID, req.Level, have))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrRequirementsNotMet, strings.Join(missing, ", "))
	}
	return nil
}
