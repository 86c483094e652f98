package draw

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/guildforge/guildcore/guildcore/incentive"
)

// SeedSize is the required seed length: one SHA-256 output.
const SeedSize = sha256.Size

// Seed feeds exactly one draw. Its origin decides the fairness property: a
// seed is either externally random (NewSeed, audit-logged by the caller) or
// derived from a revealed commit preimage (SeedFromReveal). The engine never
// produces a seed from anything it controls after entrants are frozen.
type Seed struct {
	bytes [SeedSize]byte
}

// NewSeed returns a fresh random seed from crypto/rand.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s.bytes[:]); err != nil {
		return Seed{}, fmt.Errorf("failed to generate seed: %w", err)
	}
	return s, nil
}

// ParseSeed validates the fixed 32-byte length and wraps the raw bytes.
func ParseSeed(raw []byte) (Seed, error) {
	if len(raw) != SeedSize {
		return Seed{}, incentive.Invalid("seed",
			fmt.Sprintf("must be exactly %d bytes, got %d", SeedSize, len(raw)))
	}
	var s Seed
	copy(s.bytes[:], raw)
	return s, nil
}

// seedDomain separates the seed derivation from the commitment hash, so the
// published commitment never equals the seed itself.
var seedDomain = []byte("guildcore/draw/seed:")

// SeedFromReveal derives the draw seed from a revealed commit preimage. The
// hash fixes the seed length and keeps the revealer from steering the roll
// beyond choosing the preimage before entrants were locked.
func SeedFromReveal(reveal []byte) Seed {
	var s Seed
	s.bytes = sha256.Sum256(append(append([]byte{}, seedDomain...), reveal...))
	return s
}

// Bytes returns a copy of the raw seed for audit records.
func (s Seed) Bytes() []byte {
	out := make([]byte, SeedSize)
	copy(out, s.bytes[:])
	return out
}

// Commitment hashes a reveal preimage. The commitment is published before
// entrants are locked; commitment storage is the caller's concern.
func Commitment(reveal []byte) []byte {
	digest := sha256.Sum256(reveal)
	return digest[:]
}

// VerifyCommitment re-hashes the reveal and compares it to the published
// commitment, the check any third-party verifier runs after the reveal.
func VerifyCommitment(commitment, reveal []byte) bool {
	return bytes.Equal(commitment, Commitment(reveal))
}
