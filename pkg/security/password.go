package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/furnishly-backend/pkg/config"
)

// ErrInvalidHash is returned for anything that is not a PHC-style argon2id string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

const phcPrefix = "$argon2id$"

var b64 = base64.RawStdEncoding

// argonHash is the decoded form of
// $argon2id$v=19$m=<kib>,t=<passes>,p=<lanes>$<salt>$<key>.
type argonHash struct {
	memory  uint32
	passes  uint32
	lanes   uint8
	salt    []byte
	key     []byte
	keyLen  uint32
	saltLen uint32
}

func (h argonHash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.passes, h.memory, h.lanes, h.keyLen)
}

func (h argonHash) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, h.memory, h.passes, h.lanes, b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

// weakerThan reports whether any cost parameter is below want.
func (h argonHash) weakerThan(want argonHash) bool {
	return h.memory < want.memory ||
		h.passes < want.passes ||
		h.lanes < want.lanes ||
		uint32(len(h.salt)) < want.saltLen ||
		uint32(len(h.key)) < want.keyLen
}

// HashPassword derives a fresh argon2id hash using the configured cost.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	h := costFromConfig(cfg)
	h.salt = make([]byte, h.saltLen)
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// VerifyPassword compares in constant time. A malformed hash is an error, a
// mismatch is not.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(password)) == 1, nil
}

// NeedsRehash is true when encoded was produced with a weaker cost than cfg, or
// cannot be parsed at all.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	h, err := parseHash(encoded)
	if err != nil {
		return true
	}
	return h.weakerThan(costFromConfig(cfg))
}

func costFromConfig(cfg config.PasswordConfig) argonHash {
	return argonHash{
		memory:  uint32(clamp(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:  uint32(clamp(cfg.ArgonTime, 1, 10)),
		lanes:   uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		saltLen: uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		keyLen:  uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

func parseHash(encoded string) (argonHash, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return argonHash{}, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return argonHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return argonHash{}, ErrInvalidHash
	}

	var h argonHash
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &h.memory, &h.passes, &h.lanes); err != nil {
		return argonHash{}, ErrInvalidHash
	}
	if h.passes == 0 || h.lanes == 0 {
		return argonHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(fields[2]); err != nil {
		return argonHash{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(fields[3]); err != nil || len(h.key) == 0 {
		return argonHash{}, ErrInvalidHash
	}
	h.saltLen = uint32(len(h.salt))
	h.keyLen = uint32(len(h.key))
	return h, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
