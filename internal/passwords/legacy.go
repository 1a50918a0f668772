package passwords

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	EncoderMD5    = "md5"
	EncoderSHA256 = "sha256"
	EncoderPBKDF2 = "pbkdf2"

	pbkdf2Iterations = 1000
	pbkdf2KeyLength  = 32
)

var (
	errUnknownEncoder = errors.New("passwords.legacy.unknown_encoder")
	errMissingSalt    = errors.New("passwords.legacy.missing_salt")
)

// legacyEncoder returns the hex digest of plain under salt.
type legacyEncoder func(plain string, salt string) (string, error)

var legacyEncoders = map[string]legacyEncoder{
	EncoderMD5: func(plain string, salt string) (string, error) {
		digest := md5.Sum([]byte(salt + plain))
		return hex.EncodeToString(digest[:]), nil
	},
	EncoderSHA256: func(plain string, salt string) (string, error) {
		digest := sha256.Sum256([]byte(salt + plain))
		return hex.EncodeToString(digest[:]), nil
	},
	EncoderPBKDF2: func(plain string, salt string) (string, error) {
		if salt == "" {
			return "", errMissingSalt
		}
		key := pbkdf2.Key([]byte(plain), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
		return hex.EncodeToString(key), nil
	},
}

type legacyStrategy struct{}

func (legacyStrategy) Name() string { return "legacy" }

func (legacyStrategy) Verify(plain string, record Record) (Result, error) {
	if record.LegacyHash == "" {
		return Inapplicable, nil
	}
	encoderName := strings.ToLower(strings.TrimSpace(record.LegacyEncoder))
	encode, ok := legacyEncoders[encoderName]
	if !ok {
		return Mismatch, errUnknownEncoder
	}
	digest, err := encode(plain, record.LegacySalt)
	if err != nil {
		return Mismatch, err
	}
	expected := strings.ToLower(strings.TrimSpace(record.LegacyHash))
	if subtle.ConstantTimeCompare([]byte(digest), []byte(expected)) == 1 {
		return Match, nil
	}
	return Mismatch, nil
}
