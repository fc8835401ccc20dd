package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Hashes use the PHC string format:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
const phcPrefix = "$argon2id$"

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")

	b64 = base64.RawStdEncoding
)

// Argon2Config holds the Argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be at least 8192 KiB", errInvalidConfig)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

func (c Argon2Config) sameCost(other Argon2Config) bool {
	return c.Memory == other.Memory &&
		c.Iterations == other.Iterations &&
		c.Parallelism == other.Parallelism &&
		c.KeyLength == other.KeyLength
}

var (
	argon2Mu     sync.RWMutex
	argon2Active = DefaultArgon2Config()
)

// DefaultArgon2Config returns the parameters used until ConfigureArgon2 is called.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

// CurrentArgon2Config returns the parameters new hashes are created with.
func CurrentArgon2Config() Argon2Config {
	argon2Mu.RLock()
	defer argon2Mu.RUnlock()
	return argon2Active
}

// ConfigureArgon2 replaces the active parameters. Existing hashes stay verifiable
// because every hash carries its own parameters.
func ConfigureArgon2(cfg Argon2Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	argon2Mu.Lock()
	argon2Active = cfg
	argon2Mu.Unlock()
	return nil
}

// HashPassword derives an Argon2id key with a fresh random salt.
func HashPassword(password string) (string, error) {
	cfg := CurrentArgon2Config()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, cfg.Memory, cfg.Iterations, cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches encoded. Empty inputs never match.
func VerifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	cfg, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other than the active ones.
// Unparseable hashes always need a rehash.
func NeedsRehash(encoded string) bool {
	cfg, _, _, err := parsePHC(encoded)
	return err != nil || !cfg.sameCost(CurrentArgon2Config())
}

func parsePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	if !strings.HasPrefix(encoded, phcPrefix) {
		return Argon2Config{}, nil, nil, errInvalidHashFormat
	}
	// "", "argon2id", version, params, salt, key
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 {
		return Argon2Config{}, nil, nil, errInvalidHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: %v", errInvalidHashFormat, err)
	}
	if version != argon2.Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: unsupported version %d", version)
	}

	var cfg Argon2Config
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: %v", errInvalidHashFormat, err)
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode salt: %w", err)
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode key: %w", err)
	}
	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))

	if err := cfg.validate(); err != nil {
		return Argon2Config{}, nil, nil, err
	}
	return cfg, salt, key, nil
}
