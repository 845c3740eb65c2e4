package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

const backupDirName = "backups"

// Store persists versioned tenant keys on disk, wrapped with the process
// master key. File layout: <base>/<tenantId>/key_v<version>.json, where the
// file body is base64(nonce||ciphertext) of the AES-256-GCM-wrapped JSON key
// document. A single mutex serializes all file operations.
type Store struct {
	baseDir   string
	masterKey []byte
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewStore creates a key store rooted at baseDir. The master key must be
// 32 bytes; its absence is a fatal construction error. The base directory is
// created with owner-only permissions (advisory hardening, not load-bearing).
func NewStore(baseDir string, masterKey []byte) (*Store, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes for AES-256, got %d", len(masterKey))
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to create key directory")
	}
	return &Store{
		baseDir:   baseDir,
		masterKey: masterKey,
		logger:    log.WithComponent("keystore"),
	}, nil
}

// Store writes a tenant key as a new version file
func (s *Store) Store(tenantID string, key *types.TenantKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, tenantID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to create tenant key directory")
	}

	doc, err := json.Marshal(key)
	if err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to encode key document")
	}

	wrapped, err := s.wrap(doc)
	if err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to wrap key document")
	}

	path := s.keyPath(tenantID, key.Version)
	if err := os.WriteFile(path, []byte(wrapped), 0600); err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to write key file")
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("version", key.Version).
		Msg("stored tenant key")
	return nil
}

// Get reads a tenant key. An empty version selects the highest-numbered
// version present.
func (s *Store) Get(tenantID, version string) (*types.TenantKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(tenantID, version)
}

func (s *Store) getLocked(tenantID, version string) (*types.TenantKey, error) {
	if version == "" {
		versions, err := s.listVersionsLocked(tenantID)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, errdefs.New(errdefs.KindNotFound, "no keys found for tenant %s", tenantID)
		}
		version = versions[0]
	}

	data, err := os.ReadFile(s.keyPath(tenantID, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errdefs.New(errdefs.KindNotFound, "key version %s not found for tenant %s", version, tenantID)
		}
		return nil, errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to read key file")
	}

	doc, err := s.unwrap(string(data))
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInvalidFormat, "failed to unwrap key file for tenant %s version %s", tenantID, version)
	}

	key := &types.TenantKey{}
	if err := json.Unmarshal(doc, key); err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInvalidFormat, "failed to decode key document")
	}
	key.TenantID = tenantID
	return key, nil
}

// ListVersions returns version strings in descending numeric order
func (s *Store) ListVersions(tenantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listVersionsLocked(tenantID)
}

func (s *Store) listVersionsLocked(tenantID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, tenantID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to list key directory")
	}

	var versions []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "key_v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		v := strings.TrimSuffix(strings.TrimPrefix(name, "key_v"), ".json")
		if _, err := strconv.Atoi(v); err != nil {
			continue
		}
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool {
		a, _ := strconv.Atoi(versions[i])
		b, _ := strconv.Atoi(versions[j])
		return a > b
	})
	return versions, nil
}

// LatestVersion returns the highest-numbered version on disk, or "" when the
// tenant has no keys. Other processes share the key directory, so callers use
// this to detect rotations they did not perform themselves.
func (s *Store) LatestVersion(tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.listVersionsLocked(tenantID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0], nil
}

// Delete removes a key version. The file is overwritten with random bytes
// and then zeros before unlinking, a best-effort secure delete. Deleting a
// version that does not exist is a no-op.
func (s *Store) Delete(tenantID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(tenantID, version)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to stat key file")
	}

	size := info.Size()
	for pass := 0; pass < 3; pass++ {
		buf := make([]byte, size)
		if pass < 2 {
			if _, err := rand.Read(buf); err != nil {
				return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to generate scrub bytes")
			}
		}
		if err := os.WriteFile(path, buf, 0600); err != nil {
			return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to scrub key file")
		}
	}

	if err := os.Remove(path); err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to remove key file")
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("version", version).
		Msg("deleted tenant key")
	return nil
}

// Backup copies all of a tenant's key files into a timestamp-named backup
// directory and returns its path.
func (s *Store) Backup(tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcDir := filepath.Join(s.baseDir, tenantID)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errdefs.New(errdefs.KindNotFound, "no keys found for tenant %s", tenantID)
		}
		return "", errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to read key directory")
	}

	stamp := time.Now().UTC().Format("20060102150405")
	dstDir := filepath.Join(s.baseDir, backupDirName, tenantID, stamp)
	if err := os.MkdirAll(dstDir, 0700); err != nil {
		return "", errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to create backup directory")
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
			return "", errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to copy key file %s", e.Name())
		}
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("backup", dstDir).
		Msg("backed up tenant keys")
	return dstDir, nil
}

// Restore copies key files back from the most recent backup, overwriting
// whatever is currently present.
func (s *Store) Restore(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backupsDir := filepath.Join(s.baseDir, backupDirName, tenantID)
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errdefs.New(errdefs.KindNotFound, "no backups found for tenant %s", tenantID)
		}
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to read backups directory")
	}

	var stamps []string
	for _, e := range entries {
		if e.IsDir() {
			stamps = append(stamps, e.Name())
		}
	}
	if len(stamps) == 0 {
		return errdefs.New(errdefs.KindNotFound, "no backups found for tenant %s", tenantID)
	}
	sort.Strings(stamps)
	latest := stamps[len(stamps)-1]

	srcDir := filepath.Join(backupsDir, latest)
	dstDir := filepath.Join(s.baseDir, tenantID)
	if err := os.MkdirAll(dstDir, 0700); err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to create tenant key directory")
	}

	files, err := os.ReadDir(srcDir)
	if err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to read backup directory")
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, f.Name()), filepath.Join(dstDir, f.Name())); err != nil {
			return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to restore key file %s", f.Name())
		}
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("backup", latest).
		Msg("restored tenant keys")
	return nil
}

func (s *Store) keyPath(tenantID, version string) string {
	return filepath.Join(s.baseDir, tenantID, fmt.Sprintf("key_v%s.json", version))
}

// wrap encrypts a key document with the master key, nonce prepended, base64 encoded
func (s *Store) wrap(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// unwrap reverses wrap
func (s *Store) unwrap(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("key file is not valid base64: %w", err)
	}
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("key file too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key file: %w", err)
	}
	return plaintext, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
