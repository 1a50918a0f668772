package passwords

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2idPrefix = "$argon2id$"
	argon2iPrefix  = "$argon2i$"

	defaultArgon2Memory      = 64 * 1024
	defaultArgon2Iterations  = 3
	defaultArgon2Parallelism = 2
	defaultArgon2SaltLength  = 16
	defaultArgon2KeyLength   = 32
)

var errMalformedArgon2Hash = errors.New("passwords.argon2.malformed")

type argon2Params struct {
	variant     string
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

type argon2Strategy struct{}

func (argon2Strategy) Name() string { return "argon2" }

func (argon2Strategy) Verify(plain string, record Record) (Result, error) {
	if !strings.HasPrefix(record.Hash, argon2idPrefix) && !strings.HasPrefix(record.Hash, argon2iPrefix) {
		return Inapplicable, nil
	}
	params, err := parseArgon2Hash(record.Hash)
	if err != nil {
		return Inapplicable, err
	}
	keyLength := uint32(len(params.key))
	var derived []byte
	if params.variant == "argon2id" {
		derived = argon2.IDKey([]byte(plain), params.salt, params.iterations, params.memory, params.parallelism, keyLength)
	} else {
		derived = argon2.Key([]byte(plain), params.salt, params.iterations, params.memory, params.parallelism, keyLength)
	}
	if subtle.ConstantTimeCompare(derived, params.key) == 1 {
		return Match, nil
	}
	return Mismatch, nil
}

// parseArgon2Hash reads $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>.
func parseArgon2Hash(encoded string) (argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argon2Params{}, fmt.Errorf("%w: expected 6 segments, got %d", errMalformedArgon2Hash, len(parts))
	}
	params := argon2Params{variant: parts[1]}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, fmt.Errorf("%w: unsupported version %q", errMalformedArgon2Hash, parts[2])
	}
	for _, setting := range strings.Split(parts[3], ",") {
		name, rawValue, found := strings.Cut(setting, "=")
		if !found {
			return argon2Params{}, fmt.Errorf("%w: setting %q", errMalformedArgon2Hash, setting)
		}
		value, err := strconv.ParseUint(rawValue, 10, 32)
		if err != nil || value == 0 {
			return argon2Params{}, fmt.Errorf("%w: setting %q", errMalformedArgon2Hash, setting)
		}
		switch name {
		case "m":
			params.memory = uint32(value)
		case "t":
			params.iterations = uint32(value)
		case "p":
			if value > 255 {
				return argon2Params{}, fmt.Errorf("%w: parallelism %d", errMalformedArgon2Hash, value)
			}
			params.parallelism = uint8(value)
		}
	}
	if params.memory == 0 || params.iterations == 0 || params.parallelism == 0 {
		return argon2Params{}, fmt.Errorf("%w: incomplete parameters", errMalformedArgon2Hash)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, fmt.Errorf("%w: salt: %v", errMalformedArgon2Hash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argon2Params{}, fmt.Errorf("%w: key", errMalformedArgon2Hash)
	}
	params.salt = salt
	params.key = key
	return params, nil
}

// HashArgon2id produces a PHC-formatted argon2id hash of plain.
func HashArgon2id(plain string) (string, error) {
	salt := make([]byte, defaultArgon2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passwords.hash: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, defaultArgon2Iterations, defaultArgon2Memory, defaultArgon2Parallelism, defaultArgon2KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, defaultArgon2Memory, defaultArgon2Iterations, defaultArgon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}
