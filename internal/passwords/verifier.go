package passwords

import (
	"errors"

	"go.uber.org/zap"
)

// Verifier checks a plaintext against a Record using the modern strategies first and
// the legacy encoders only when no modern hash decided the outcome.
type Verifier struct {
	modern []Strategy
	legacy Strategy
	logger *zap.Logger
}

// NewVerifier builds a Verifier with argon2, bcrypt and the legacy encoders.
func NewVerifier(logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		modern: []Strategy{argon2Strategy{}, bcryptStrategy{}},
		legacy: legacyStrategy{},
		logger: logger,
	}
}

// Verify reports whether plain matches the record. Broken or unsupported hashes resolve to false.
func (verifier *Verifier) Verify(plain string, record Record) bool {
	if record.Hash != "" {
		result, decided := verifier.verifyModern(plain, record)
		if decided {
			return result == Match
		}
	}

	result, err := verifier.legacy.Verify(plain, record)
	if err != nil {
		verifier.logLegacyFailure(record, err)
		return false
	}
	return result == Match
}

// verifyModern returns decided=false when the modern hash could not be evaluated.
func (verifier *Verifier) verifyModern(plain string, record Record) (Result, bool) {
	for _, strategy := range verifier.modern {
		result, err := strategy.Verify(plain, record)
		if err != nil {
			verifier.logger.Warn("modern password hash unusable",
				zap.String("code", "passwords.modern_hash_error"),
				zap.String("strategy", strategy.Name()),
				zap.Bool("legacy_available", record.LegacyHash != ""),
				zap.Error(err))
			return Inapplicable, false
		}
		if result != Inapplicable {
			return result, true
		}
	}
	verifier.logger.Warn("modern password hash format not recognized",
		zap.String("code", "passwords.modern_hash_unrecognized"),
		zap.Bool("legacy_available", record.LegacyHash != ""))
	return Inapplicable, false
}

func (verifier *Verifier) logLegacyFailure(record Record, err error) {
	switch {
	case errors.Is(err, errUnknownEncoder):
		verifier.logger.Warn("legacy password encoder not supported",
			zap.String("code", "passwords.legacy_unknown_encoder"),
			zap.String("encoder", record.LegacyEncoder))
	case errors.Is(err, errMissingSalt):
		verifier.logger.Warn("legacy password salt missing",
			zap.String("code", "passwords.legacy_missing_salt"),
			zap.String("encoder", record.LegacyEncoder))
	default:
		verifier.logger.Warn("legacy password verification failed",
			zap.String("code", "passwords.legacy_error"),
			zap.String("encoder", record.LegacyEncoder),
			zap.Error(err))
	}
}
