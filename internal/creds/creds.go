package creds

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// saltBytes is the number of random salt bytes (32 hex characters).
	saltBytes = 16

	// DefaultPasswordLength is the length of generated passwords.
	DefaultPasswordLength = 12

	// passwordCharset is the alphabet used for generated passwords.
	passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

	// filePermissions restricts the credential file to its owner.
	filePermissions = 0o600
)

var (
	// ErrNotFound is returned when the credential file does not exist.
	// The server treats this as a fatal startup condition: operating with a
	// missing credential must never be possible.
	ErrNotFound = errors.New("credential file not found")

	// errEmptyPassword rejects blank passwords before hashing.
	errEmptyPassword = errors.New("password must not be empty")
)

// Hash produces the stored form "salt:hash" where hash is the hex SHA-256 of
// password concatenated with the salt. A fresh random salt is generated on
// every call so resets never reuse a prior salt.
func Hash(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	saltHex := hex.EncodeToString(salt)
	sum := sha256.Sum256([]byte(password + saltHex))

	return saltHex + ":" + hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the hash using the salt embedded in stored and compares
// in constant time. Any malformed stored value yields false, never an error.
func Verify(password, stored string) bool {
	salt, wantHash, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || wantHash == "" {
		return false
	}

	want, err := hex.DecodeString(wantHash)
	if err != nil {
		return false
	}

	got := sha256.Sum256([]byte(password + salt))

	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// Generate returns a secure random password of the requested length.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLength
	}

	var builder strings.Builder

	for i := 0; i < length; i++ {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordCharset))))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}

		builder.WriteByte(passwordCharset[index.Int64()])
	}

	return builder.String(), nil
}

// Store holds the single administrative credential backed by a file.
// Readers always observe either the previous or the new value in full.
type Store struct {
	// path is the filesystem location of the credential file.
	path string
	// mu protects the in-memory stored value.
	mu sync.RWMutex
	// stored is the authoritative "salt:hash" value.
	stored string
}

// Load reads the credential from the provided path. A missing file returns
// ErrNotFound so callers can fail closed instead of provisioning a default.
func Load(path string) (*Store, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("read credential: %w", err)
	}

	stored := strings.TrimSpace(string(contents))
	if _, _, ok := strings.Cut(stored, ":"); !ok {
		return nil, fmt.Errorf("credential file %s is not in salt:hash form", path)
	}

	return &Store{
		path:   path,
		stored: stored,
	}, nil
}

// Verify checks the candidate password against the current credential.
func (s *Store) Verify(password string) bool {
	s.mu.RLock()
	stored := s.stored
	s.mu.RUnlock()

	return Verify(password, stored)
}

// Replace persists the new stored value and swaps it in memory only after the
// write succeeded. On failure the previous credential remains authoritative,
// so the store is never left half-updated.
func (s *Store) Replace(newStored string) error {
	if _, _, ok := strings.Cut(newStored, ":"); !ok {
		return errors.New("replacement credential is not in salt:hash form")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteFile(s.path, newStored); err != nil {
		return err
	}

	s.stored = newStored

	return nil
}

// ChangePassword verifies the current password and replaces the credential
// with a fresh hash of the new one.
func (s *Store) ChangePassword(current, next string) error {
	if !s.Verify(current) {
		return errors.New("current password is incorrect")
	}

	stored, err := Hash(next)
	if err != nil {
		return err
	}

	return s.Replace(stored)
}

// WriteFile persists a stored credential atomically: the value is written to
// a temporary file first and renamed over the target.
func WriteFile(path, stored string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("create temp credential: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(stored + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write credential: %w", err)
	}

	if err := tmp.Chmod(filePermissions); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod credential: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close credential: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace credential: %w", err)
	}

	return nil
}
