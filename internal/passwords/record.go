// Package passwords verifies account passwords against modern and legacy hash formats.
package passwords

// Record holds every stored hash of one account.
type Record struct {
	// Hash is a self-describing modern hash (argon2 PHC string or bcrypt).
	Hash          string
	LegacyHash    string
	LegacyEncoder string
	LegacySalt    string
}

// Result is the outcome of one strategy.
type Result int

const (
	// Inapplicable means the strategy does not understand the stored hash.
	Inapplicable Result = iota
	Match
	Mismatch
)

func (result Result) String() string {
	switch result {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return "inapplicable"
	}
}

// Strategy checks a plaintext against the part of a Record it understands.
// A non-nil error means the stored hash is unusable.
type Strategy interface {
	Name() string
	Verify(plain string, record Record) (Result, error)
}
