package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	minMemoryKiB    uint32 = 8 * 1024
	saltLength      uint32 = 16
	keyLength       uint32 = 32
	argon2Version          = argon2.Version
	argon2Algorithm        = "argon2id"
)

var ErrInvalidHash = errors.New("invalid password hash")

type PasswordParams struct {
	MemoryKiB     uint32
	Iterations    uint32
	Parallelism   uint8
	MaxConcurrent int
}

// PasswordHasher hashes with argon2id. Hash and Verify run the derivation on a
// separate goroutine, bounded by a semaphore, so a burst of logins cannot starve
// the request-serving goroutines.
type PasswordHasher struct {
	params PasswordParams
	slots  *semaphore.Weighted
	dummy  string
}

func NewPasswordHasher(params PasswordParams) (*PasswordHasher, error) {
	if params.MemoryKiB < minMemoryKiB {
		return nil, fmt.Errorf("password memory must be >= %d KiB", minMemoryKiB)
	}
	if params.Iterations < 1 {
		return nil, fmt.Errorf("password iterations must be >= 1")
	}
	if params.Parallelism < 1 {
		return nil, fmt.Errorf("password parallelism must be >= 1")
	}
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = runtime.GOMAXPROCS(0)
	}

	h := &PasswordHasher{
		params: params,
		slots:  semaphore.NewWeighted(int64(params.MaxConcurrent)),
	}

	dummy, err := h.hash([]byte("newsroom-timing-equalizer"))
	if err != nil {
		return nil, fmt.Errorf("computing dummy hash: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

// Hash returns a PHC string: $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	var encoded string
	err := h.run(ctx, func() error {
		var err error
		encoded, err = h.hash([]byte(password))
		return err
	})
	return encoded, err
}

// Verify reports whether password matches encodedHash using a constant-time comparison.
func (h *PasswordHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	var ok bool
	err := h.run(ctx, func() error {
		var err error
		ok, err = verify([]byte(password), encodedHash)
		return err
	})
	return ok, err
}

// VerifyDummy burns one verification against a fixed hash. Used when the
// account does not exist so response timing stays flat.
func (h *PasswordHasher) VerifyDummy(ctx context.Context, password string) {
	_, _ = h.Verify(ctx, password, h.dummy)
}

func (h *PasswordHasher) run(ctx context.Context, fn func() error) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for hash slot: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer h.slots.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *PasswordHasher) hash(password []byte) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(password, salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, keyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Algorithm,
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func verify(password []byte, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2Algorithm {
		return false, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2Version) {
		return false, ErrInvalidHash
	}

	var (
		memory, iterations uint32
		parallelism        uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrInvalidHash
	}
	if memory < minMemoryKiB || iterations < 1 || parallelism < 1 {
		return false, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false, ErrInvalidHash
	}
	expected, err := b64.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(password, salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
