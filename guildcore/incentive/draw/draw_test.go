package draw

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildforge/guildcore/guildcore/incentive"
)

// testSeed derives a distinct deterministic seed per trial so the
// statistical tests are reproducible.
func testSeed(t *testing.T, trial int) Seed {
	t.Helper()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(trial))
	digest := sha256.Sum256(buf[:])
	seed, err := ParseSeed(digest[:])
	require.NoError(t, err)
	return seed
}

func TestDrawDeterminism(t *testing.T) {
	entrants := []Entrant{
		{ID: "alice", Weight: 1},
		{ID: "bob", Weight: 2.5},
		{ID: "carol", Weight: 0.5},
	}
	seed := testSeed(t, 42)

	first, err := Draw(entrants, seed)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := Draw(entrants, seed)
		require.NoError(t, err)
		assert.Equal(t, first, again, "identical entrants and seed must yield identical results")
	}
}

func TestDrawValidation(t *testing.T) {
	seed := testSeed(t, 1)
	var vErr *incentive.ValidationError

	_, err := Draw(nil, seed)
	require.ErrorAs(t, err, &vErr)

	_, err = Draw([]Entrant{}, seed)
	require.ErrorAs(t, err, &vErr)

	_, err = Draw([]Entrant{{ID: "a", Weight: 0}}, seed)
	require.ErrorAs(t, err, &vErr)

	_, err = Draw([]Entrant{{ID: "a", Weight: 1}, {ID: "b", Weight: -2}}, seed)
	require.ErrorAs(t, err, &vErr)
}

func TestDrawSingleEntrantAlwaysWins(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		result, err := Draw([]Entrant{{ID: "only", Weight: 0.001}}, testSeed(t, trial))
		require.NoError(t, err)
		assert.Equal(t, "only", result.WinnerID)
		assert.GreaterOrEqual(t, result.Roll, 0.0)
		assert.LessOrEqual(t, result.Roll, 1.0)
	}
}

func TestDrawRollMatchesSpecFormula(t *testing.T) {
	seed := testSeed(t, 7)
	digest := sha256.Sum256(seed.Bytes())
	want := float64(binary.BigEndian.Uint32(digest[:4])) / float64(0xFFFFFFFF)

	result, err := Draw([]Entrant{{ID: "a", Weight: 1}}, seed)
	require.NoError(t, err)
	assert.Equal(t, want, result.Roll)
}

func TestDrawUniformWeightSymmetry(t *testing.T) {
	// Three equal entrants over 10,000 independent seeds: each win share
	// must land in a wide band around 1/3.
	entrants := []Entrant{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 1},
		{ID: "c", Weight: 1},
	}

	const trials = 10000
	wins := map[string]int{}
	for trial := 0; trial < trials; trial++ {
		result, err := Draw(entrants, testSeed(t, trial))
		require.NoError(t, err)
		wins[result.WinnerID]++
	}

	for id, count := range wins {
		share := float64(count) / trials
		assert.Greater(t, share, 0.25, "entrant %s won too rarely: %.4f", id, share)
		assert.Less(t, share, 0.45, "entrant %s won too often: %.4f", id, share)
	}
}

func TestDrawMonotonicBias(t *testing.T) {
	// An entrant with triple the weight of an otherwise identical rival must
	// not win less often in aggregate.
	entrants := []Entrant{
		{ID: "light", Weight: 1},
		{ID: "heavy", Weight: 3},
	}

	const trials = 10000
	wins := map[string]int{}
	for trial := 0; trial < trials; trial++ {
		result, err := Draw(entrants, testSeed(t, trial))
		require.NoError(t, err)
		wins[result.WinnerID]++
	}

	assert.Greater(t, wins["heavy"], wins["light"])
	heavyShare := float64(wins["heavy"]) / trials
	assert.InDelta(t, 0.75, heavyShare, 0.05)
}

func TestDrawIncreasingOwnWeightNeverHurts(t *testing.T) {
	// Holding all other weights fixed, bumping one entrant's weight must not
	// decrease its aggregate win count.
	const trials = 4000
	winsAt := func(weight float64) int {
		entrants := []Entrant{
			{ID: "target", Weight: weight},
			{ID: "rival-1", Weight: 2},
			{ID: "rival-2", Weight: 2},
		}
		count := 0
		for trial := 0; trial < trials; trial++ {
			result, err := Draw(entrants, testSeed(t, trial))
			require.NoError(t, err)
			if result.WinnerID == "target" {
				count++
			}
		}
		return count
	}

	previous := -1
	for _, weight := range []float64{0.5, 1, 2, 4, 8} {
		wins := winsAt(weight)
		assert.GreaterOrEqual(t, wins, previous, "weight %v", weight)
		previous = wins
	}
}

func TestDrawEqualWeightsPreserveInputOrder(t *testing.T) {
	// Ties in weight never reorder entrants: with one seed, swapping two
	// equal-weight entrants flips which of them sits on the winning share.
	seed := testSeed(t, 9)
	forward := []Entrant{{ID: "a", Weight: 1}, {ID: "b", Weight: 1}}
	reversed := []Entrant{{ID: "b", Weight: 1}, {ID: "a", Weight: 1}}

	fwd, err := Draw(forward, seed)
	require.NoError(t, err)
	rev, err := Draw(reversed, seed)
	require.NoError(t, err)

	assert.Equal(t, fwd.Roll, rev.Roll)
	if fwd.Roll <= 0.5 {
		assert.Equal(t, "a", fwd.WinnerID)
		assert.Equal(t, "b", rev.WinnerID)
	} else {
		assert.Equal(t, "b", fwd.WinnerID)
		assert.Equal(t, "a", rev.WinnerID)
	}
}

func TestParseSeedLength(t *testing.T) {
	var vErr *incentive.ValidationError

	_, err := ParseSeed(make([]byte, 16))
	require.ErrorAs(t, err, &vErr)

	_, err = ParseSeed(nil)
	require.ErrorAs(t, err, &vErr)

	seed, err := ParseSeed(make([]byte, SeedSize))
	require.NoError(t, err)
	assert.Len(t, seed.Bytes(), SeedSize)
}

func TestNewSeedIsRandom(t *testing.T) {
	first, err := NewSeed()
	require.NoError(t, err)
	second, err := NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, first.Bytes(), second.Bytes())
}

func TestCommitmentRoundTrip(t *testing.T) {
	reveal := []byte("raffle-2031-week-07 secret")
	commitment := Commitment(reveal)

	assert.Len(t, commitment, sha256.Size)
	assert.True(t, VerifyCommitment(commitment, reveal))
	assert.False(t, VerifyCommitment(commitment, []byte("some other preimage")))
	assert.False(t, VerifyCommitment(commitment[:16], reveal))
}

func TestSeedFromRevealDiffersFromCommitment(t *testing.T) {
	reveal := []byte("secret")
	seed := SeedFromReveal(reveal)

	assert.NotEqual(t, Commitment(reveal), seed.Bytes(),
		"the published commitment must not equal the seed")
	assert.Equal(t, seed, SeedFromReveal(reveal), "derivation is deterministic")
}

func BenchmarkDraw(b *testing.B) {
	entrants := make([]Entrant, 100)
	for i := range entrants {
		entrants[i] = Entrant{ID: fmt.Sprintf("entrant-%d", i), Weight: float64(i + 1)}
	}
	seed, _ := NewSeed()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Draw(entrants, seed)
	}
}
