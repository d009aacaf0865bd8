package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length
)

// Upper bounds applied when decoding a stored digest, so a corrupted row
// cannot make verification allocate unbounded memory.
const (
	maxArgonTime    = 16
	maxArgonMemory  = 1024 * 1024 // 1 GiB
	maxArgonThreads = 16
	minArgonKeyLen  = 16
	maxArgonKeyLen  = 64
)

// bcrypt digests issued by the previous service start with one of these.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// Hasher produces Argon2id digests in PHC format and verifies both Argon2id
// and legacy bcrypt digests.
type Hasher struct {
	params argonParams
}

// NewHasher returns a Hasher with the production Argon2id parameters.
func NewHasher() *Hasher {
	return &Hasher{params: argonParams{time: argonTime, memory: argonMemory, threads: argonThreads}}
}

// NewHasherWithParams returns a Hasher with explicit cost parameters.
// Tests use it to keep hashing cheap.
func NewHasherWithParams(time, memoryKiB uint32, threads uint8) *Hasher {
	return &Hasher{params: argonParams{time: time, memory: memoryKiB, threads: threads}}
}

// Hash hashes a plaintext password with a fresh random salt and returns it
// in PHC string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.time, h.params.memory, h.params.threads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory, h.params.time, h.params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. A malformed or
// unsupported digest verifies as false.
func (h *Hasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	salt, key, params, err := decodePHC(digest)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key))) //nolint:gosec // G115: key length bounded by decodePHC

	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// NeedsRehash reports whether digest should be replaced after a successful
// verification: legacy bcrypt digests and Argon2id digests with other costs.
func (h *Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	_, _, params, err := decodePHC(digest)
	if err != nil {
		return false
	}
	return params != h.params
}

func isBcrypt(digest string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(digest, p) {
			return true
		}
	}
	return false
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.time < 1 || params.time > maxArgonTime ||
		params.memory < 1 || params.memory > maxArgonMemory ||
		params.threads < 1 || params.threads > maxArgonThreads {
		return nil, nil, params, fmt.Errorf("argon2 parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) < minArgonKeyLen || len(key) > maxArgonKeyLen {
		return nil, nil, params, fmt.Errorf("argon2 key length out of range")
	}

	return salt, key, params, nil
}
