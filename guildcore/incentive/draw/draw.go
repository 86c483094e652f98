// Package draw implements the seed-committed weighted selection used for
// item and reward distribution. The computation is pure: the same entrants
// and the same seed always produce the same winner, so any party holding the
// audit record can re-run the draw and check the outcome.
package draw

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/guildforge/guildcore/guildcore/incentive"
)

// Entrant is one weighted participant. The weight is derived externally
// (typically from the reward calculator's normalized bonus) and treated as an
// opaque positive number here.
type Entrant struct {
	ID     string
	Weight float64
}

// Result is the immutable outcome of one draw, persisted for audit.
type Result struct {
	WinnerID string
	Roll     float64
}

// Draw selects a winner among the entrants using the seed. The entrant slice
// must be non-empty, every weight positive, and the slice must not be mutated
// for the duration of the call.
//
// The roll is the first 4 bytes of SHA-256(seed) read as a big-endian uint32
// and divided by 0xFFFFFFFF, giving a value in [0, 1]. Weights are folded
// into cumulative shares in input order (equal weights never reorder
// entrants) and the first entrant whose cumulative share reaches the roll
// wins. Floating rounding can leave the final cumulative share a hair below
// 1.0; the scan then falls back to the last entrant so a winner is always
// picked.
func Draw(entrants []Entrant, seed Seed) (Result, error) {
	if len(entrants) == 0 {
		return Result{}, incentive.Invalid("entrants", "must not be empty")
	}

	var total float64
	for i, entrant := range entrants {
		if entrant.Weight <= 0 {
			return Result{}, incentive.Invalid("weight",
				fmt.Sprintf("entrant %d (%s) has non-positive weight %v", i, entrant.ID, entrant.Weight))
		}
		total += entrant.Weight
	}

	roll := seed.Roll()

	var cumulative float64
	for _, entrant := range entrants {
		cumulative += entrant.Weight / total
		if cumulative >= roll {
			return Result{WinnerID: entrant.ID, Roll: roll}, nil
		}
	}

	// Only reachable at the 1.0 float boundary.
	return Result{WinnerID: entrants[len(entrants)-1].ID, Roll: roll}, nil
}

// Roll derives the draw's roll value in [0, 1] from the seed.
func (s Seed) Roll() float64 {
	digest := sha256.Sum256(s.bytes[:])
	return float64(binary.BigEndian.Uint32(digest[:4])) / float64(0xFFFFFFFF)
}
