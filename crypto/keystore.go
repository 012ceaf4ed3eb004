package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const keyStoreSuffix = ".sealed"

var (
	// ErrSecretNotFound is returned by Get for unknown names.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrWrongPassword is returned when a stored blob does not open under the
	// store password. A corrupt blob reports the same error.
	ErrWrongPassword = errors.New("wrong password or corrupted secret")
	// ErrInvalidSecretName rejects names that would escape the store directory.
	ErrInvalidSecretName = errors.New("invalid secret name")
	// ErrKeyStoreClosed is returned after Close.
	ErrKeyStoreClosed = errors.New("key store closed")
)

// EncryptedKeyStore keeps named secrets on disk, each sealed as a password
// blob. Writes are atomic (temporary file then rename) with 0600 permissions.
//
// The store derives its sealing key once, or adopts the key of the first blob
// it opens, so re-sealing a secret costs no PBKDF2 work.
type EncryptedKeyStore struct {
	mu        sync.Mutex
	dataDir   string
	password  []byte
	encrypter *PasswordEncrypter
	sealing   *SealingKey
	closed    bool
}

// NewEncryptedKeyStore opens or creates a store in dataDir.
func NewEncryptedKeyStore(dataDir string, password []byte, encrypter *PasswordEncrypter) (*EncryptedKeyStore, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidArgument)
	}
	if encrypter == nil {
		return nil, fmt.Errorf("%w: nil password encrypter", ErrInvalidArgument)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &EncryptedKeyStore{
		dataDir:   dataDir,
		password:  append([]byte(nil), password...),
		encrypter: encrypter,
	}, nil
}

// Prepare derives the sealing key ahead of the first Put. Calling it is
// optional.
func (ks *EncryptedKeyStore) Prepare() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return ErrKeyStoreClosed
	}
	_, err := ks.sealingKey()
	return err
}

// sealingKey returns the cached key, deriving it if needed. ks.mu must be held.
func (ks *EncryptedKeyStore) sealingKey() (*SealingKey, error) {
	if ks.sealing == nil {
		k, err := ks.encrypter.NewSealingKey(string(ks.password))
		if err != nil {
			return nil, err
		}
		ks.sealing = k
	}
	return ks.sealing, nil
}

// resetSealingKey drops the cached key. ks.mu must be held.
func (ks *EncryptedKeyStore) resetSealingKey() {
	ks.sealing.Erase()
	ks.sealing = nil
}

// open decrypts blob with the cached key when it matches, otherwise derives
// the blob's own key and caches it if none is cached yet. ks.mu must be held.
func (ks *EncryptedKeyStore) open(blob []byte) ([]byte, bool) {
	if ks.sealing != nil && ks.sealing.opens(blob) {
		return ks.encrypter.Open(ks.sealing, blob)
	}
	k, ok := sealingKeyFor(string(ks.password), blob)
	if !ok {
		return nil, false
	}
	secret, ok := ks.encrypter.Open(k, blob)
	if ok && ks.sealing == nil {
		ks.sealing = k
	} else {
		k.Erase()
	}
	return secret, ok
}

func (ks *EncryptedKeyStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSecretName, name)
	}
	return filepath.Join(ks.dataDir, name+keyStoreSuffix), nil
}

// Put seals secret under name, replacing any previous value.
func (ks *EncryptedKeyStore) Put(name string, secret []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return ErrKeyStoreClosed
	}
	finalFile, err := ks.path(name)
	if err != nil {
		return err
	}

	k, err := ks.sealingKey()
	if err != nil {
		return fmt.Errorf("failed to derive sealing key: %w", err)
	}
	blob, err := ks.encrypter.Seal(k, secret)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", name, err)
	}

	tmpFile := finalFile + ".tmp"
	if err := os.WriteFile(tmpFile, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "EncryptedKeyStore.Put",
		"name":     name,
	}).Debug("Secret stored")
	return nil
}

// Get opens the secret stored under name.
func (ks *EncryptedKeyStore) Get(name string) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return nil, ErrKeyStoreClosed
	}
	file, err := ks.path(name)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	secret, ok := ks.open(blob)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "EncryptedKeyStore.Get",
			"name":     name,
		}).Warn("Stored secret did not open")
		return nil, fmt.Errorf("%w: %s", ErrWrongPassword, name)
	}
	return secret, nil
}

// Delete overwrites the stored blob with zeros and removes it. Deleting an
// unknown name is not an error.
func (ks *EncryptedKeyStore) Delete(name string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return ErrKeyStoreClosed
	}
	file, err := ks.path(name)
	if err != nil {
		return err
	}

	info, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Best-effort overwrite; journaling filesystems may keep old blocks.
	zeros := make([]byte, info.Size())
	if err := os.WriteFile(file, zeros, 0o600); err != nil {
		return os.Remove(file)
	}
	return os.Remove(file)
}

// Names lists the stored secrets in lexical order.
func (ks *EncryptedKeyStore) Names() ([]string, error) {
	entries, err := os.ReadDir(ks.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keyStoreSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), keyStoreSuffix))
	}
	return names, nil
}

// ChangePassword re-seals every stored secret under newPassword. On failure
// the store keeps the old password; secrets already re-sealed must be
// restored by the caller from a backup.
func (ks *EncryptedKeyStore) ChangePassword(newPassword []byte) error {
	if len(newPassword) == 0 {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidArgument)
	}
	names, err := ks.Names()
	if err != nil {
		return err
	}

	plaintexts := make(map[string][]byte, len(names))
	defer func() {
		for _, p := range plaintexts {
			ZeroBytes(p)
		}
	}()
	for _, name := range names {
		secret, err := ks.Get(name)
		if err != nil {
			return err
		}
		plaintexts[name] = secret
	}

	ks.mu.Lock()
	oldPassword := ks.password
	ks.password = append([]byte(nil), newPassword...)
	ks.resetSealingKey()
	ks.mu.Unlock()

	for name, secret := range plaintexts {
		if err := ks.Put(name, secret); err != nil {
			ks.mu.Lock()
			ZeroBytes(ks.password)
			ks.password = oldPassword
			ks.resetSealingKey()
			ks.mu.Unlock()
			return fmt.Errorf("failed to re-seal %s: %w", name, err)
		}
	}
	ZeroBytes(oldPassword)
	return nil
}

// Close wipes the password from memory. The store is unusable afterwards.
func (ks *EncryptedKeyStore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if !ks.closed {
		ZeroBytes(ks.password)
		ks.resetSealingKey()
		ks.closed = true
	}
	return nil
}
