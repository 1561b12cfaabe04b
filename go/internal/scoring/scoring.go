// Package scoring collects guesses for a room in its guessing phase and runs
// the scoring pass once every participant has voted.
package scoring

import (
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
)

// Complete reports whether every participant has a recorded guess. Voters are
// counted once no matter how many rows they produced, and guesses from
// outside the roster never count.
func Complete(participants []models.Participant, guesses []models.Guess) bool {
	if len(participants) == 0 {
		return false
	}
	member := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		member[p.ID] = true
	}
	voted := make(map[uuid.UUID]bool, len(guesses))
	for _, g := range guesses {
		if member[g.VoterID] {
			voted[g.VoterID] = true
		}
	}
	return len(voted) == len(member)
}
