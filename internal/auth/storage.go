package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrCredentialsNotFound is returned by every backend when a profile has no
// stored credentials.
var ErrCredentialsNotFound = errors.New("credentials not found")

func notFound(profile string) error {
	return fmt.Errorf("%w for profile '%s'", ErrCredentialsNotFound, profile)
}

// StorageBackend persists serialized credentials per profile.
type StorageBackend interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	Profiles() ([]string, error)
	Name() string
}

// keyringAvailable checks that the system keyring accepts writes. Tests replace it.
var keyringAvailable = func() bool {
	const sentinel = "gdmirror-keyring-check"
	if err := keyring.Set(serviceName, sentinel, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, sentinel)
	return true
}

// KeyringStorage keeps credentials in the OS keychain. Keychains cannot be
// enumerated, so profile names are also tracked in an index file.
type KeyringStorage struct {
	service string
	index   profileIndex
}

func NewKeyringStorage(service, indexDir string) *KeyringStorage {
	return &KeyringStorage{
		service: service,
		index:   profileIndex(filepath.Join(indexDir, "profiles.json")),
	}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	if err := keyring.Set(s.service, profile, string(data)); err != nil {
		return err
	}
	return s.index.add(profile)
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	data, err := keyring.Get(s.service, profile)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return nil, notFound(profile)
	case err != nil:
		return nil, err
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(profile string) error {
	err := keyring.Delete(s.service, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		_ = s.index.remove(profile)
		return notFound(profile)
	}
	if err != nil {
		return err
	}
	return s.index.remove(profile)
}

func (s *KeyringStorage) Profiles() ([]string, error) { return s.index.read() }

func (s *KeyringStorage) Name() string { return "system-keyring" }

// profileIndex is a JSON array of profile names.
type profileIndex string

func (p profileIndex) read() ([]string, error) {
	data, err := os.ReadFile(string(p))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var profiles []string
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("corrupt profile index %s: %w", p, err)
	}
	return profiles, nil
}

func (p profileIndex) write(profiles []string) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return err
	}
	return writePrivate(string(p), data)
}

func (p profileIndex) add(profile string) error {
	profiles, err := p.read()
	if err != nil || slices.Contains(profiles, profile) {
		return err
	}
	return p.write(append(profiles, profile))
}

func (p profileIndex) remove(profile string) error {
	profiles, err := p.read()
	if err != nil || !slices.Contains(profiles, profile) {
		return err
	}
	return p.write(slices.DeleteFunc(profiles, func(s string) bool { return s == profile }))
}

// sealer encrypts credential files with AES-GCM. Sealed data is
// nonce||ciphertext.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("sealed credentials too short")
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// fileStorage keeps one file per profile under dir/credentials. With a
// sealer the files are encrypted and end in .enc, otherwise they are plain
// JSON.
type fileStorage struct {
	dir    string
	ext    string
	name   string
	sealer *sealer
}

// NewEncryptedFileStorage stores credentials sealed with a key kept in
// baseDir/.keyfile.
func NewEncryptedFileStorage(baseDir string) (StorageBackend, error) {
	key, err := loadOrCreateKey(filepath.Join(baseDir, ".keyfile"))
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &fileStorage{dir: filepath.Join(baseDir, "credentials"), ext: ".enc", name: "encrypted-file", sealer: s}, nil
}

// NewPlainFileStorage stores credentials unencrypted. Development only.
func NewPlainFileStorage(baseDir string) StorageBackend {
	return &fileStorage{dir: filepath.Join(baseDir, "credentials"), ext: ".json", name: "plain-file"}
}

func (s *fileStorage) path(profile string) string {
	return filepath.Join(s.dir, profile+s.ext)
}

func (s *fileStorage) Save(profile string, data []byte) error {
	if s.sealer != nil {
		sealed, err := s.sealer.seal(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		data = sealed
	}
	return writePrivate(s.path(profile), data)
}

func (s *fileStorage) Load(profile string) ([]byte, error) {
	data, err := os.ReadFile(s.path(profile))
	if os.IsNotExist(err) {
		return nil, notFound(profile)
	}
	if err != nil || s.sealer == nil {
		return data, err
	}
	return s.sealer.open(data)
}

func (s *fileStorage) Delete(profile string) error {
	err := os.Remove(s.path(profile))
	if os.IsNotExist(err) {
		return notFound(profile)
	}
	return err
}

func (s *fileStorage) Profiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	profiles := []string{}
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), s.ext); ok && !e.IsDir() {
			profiles = append(profiles, name)
		}
	}
	return profiles, nil
}

func (s *fileStorage) Name() string { return s.name }

func writePrivate(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// loadOrCreateKey reads a base64 32-byte key, replacing a missing or
// malformed one with a fresh key.
func loadOrCreateKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		if key, err := base64.StdEncoding.DecodeString(string(data)); err == nil && len(key) == 32 {
			return key, nil
		}
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := writePrivate(path, []byte(base64.StdEncoding.EncodeToString(key))); err != nil {
		return nil, err
	}
	return key, nil
}

// ListProfiles lists the profiles that have stored credentials.
func (m *Manager) ListProfiles() ([]string, error) {
	profiles, err := m.storage.Profiles()
	if err != nil {
		return nil, err
	}
	slices.Sort(profiles)
	return profiles, nil
}
