package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

const (
	cacheTTL    = 30 * time.Minute
	latestLabel = "latest"
)

type cacheEntry struct {
	key       *types.TenantKey
	expiresAt time.Time
}

// Engine performs per-tenant AES-256-GCM encryption. Key material comes from
// the keystore through a TTL cache; one mutex serializes cache lookups and
// the keystore reads behind them.
type Engine struct {
	store  *keystore.Store
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewEngine creates an encryption engine backed by the given key store
func NewEngine(store *keystore.Store) *Engine {
	return &Engine{
		store:  store,
		logger: log.WithComponent("encryption"),
		cache:  make(map[string]cacheEntry),
	}
}

// Encrypt encrypts plaintext with the tenant's active key and returns
// base64(nonce||ciphertext).
func (e *Engine) Encrypt(plaintext, tenantID string) (string, error) {
	key, err := e.activeKey(tenantID)
	if err != nil {
		return "", err
	}
	sealed, err := seal(key.KeyMaterial, []byte(plaintext))
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.KindInternal, "encryption failed for tenant %s", tenantID)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt using the tenant's active key
func (e *Engine) Decrypt(encoded, tenantID string) (string, error) {
	key, err := e.activeKey(tenantID)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.KindInvalidFormat, "ciphertext is not valid base64")
	}
	plain, err := open(key.KeyMaterial, raw)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.KindInvalidFormat, "decryption failed for tenant %s", tenantID)
	}
	return string(plain), nil
}

// EncryptField encrypts one field of one entity, recording the key version
// and an integrity checksum alongside the ciphertext.
func (e *Engine) EncryptField(plaintext, fieldName, entityID, tenantID string) (*types.EncryptedField, error) {
	key, err := e.activeKey(tenantID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key.KeyMaterial)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal, "failed to create GCM")
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal, "failed to generate IV")
	}

	ciphertext := base64.StdEncoding.EncodeToString(gcm.Seal(nil, iv, []byte(plaintext), nil))
	field := &types.EncryptedField{
		EntityID:    entityID,
		FieldName:   fieldName,
		Ciphertext:  ciphertext,
		IV:          base64.StdEncoding.EncodeToString(iv),
		KeyVersion:  key.Version,
		Algorithm:   types.KeyAlgorithm,
		EncryptedAt: time.Now().UTC(),
	}
	field.Checksum = checksum(field)
	return field, nil
}

// DecryptField verifies the field's checksum and decrypts it with the key
// version recorded at encryption time, so fields written before a rotation
// remain readable.
func (e *Engine) DecryptField(field *types.EncryptedField, tenantID string) (string, error) {
	if field.Checksum != checksum(field) {
		return "", errdefs.New(errdefs.KindIntegrityViolation,
			"checksum mismatch for field %s of entity %s", field.FieldName, field.EntityID)
	}

	key, err := e.keyVersion(tenantID, field.KeyVersion)
	if err != nil {
		return "", err
	}

	iv, err := base64.StdEncoding.DecodeString(field.IV)
	if err != nil {
		return "", errdefs.New(errdefs.KindIntegrityViolation, "IV is not valid base64")
	}
	raw, err := base64.StdEncoding.DecodeString(field.Ciphertext)
	if err != nil {
		return "", errdefs.New(errdefs.KindIntegrityViolation, "ciphertext is not valid base64")
	}

	block, err := aes.NewCipher(key.KeyMaterial)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.KindInternal, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.KindInternal, "failed to create GCM")
	}
	if len(iv) != gcm.NonceSize() {
		return "", errdefs.New(errdefs.KindIntegrityViolation, "IV has wrong length")
	}
	plain, err := gcm.Open(nil, iv, raw, nil)
	if err != nil {
		return "", errdefs.New(errdefs.KindIntegrityViolation,
			"authentication failed for field %s of entity %s", field.FieldName, field.EntityID)
	}
	return string(plain), nil
}

// RotateKeys generates and activates a new key version for the tenant.
// The previous version is retained for decrypting existing ciphertext.
// Re-encryption of old fields is a background concern outside the engine.
// Returns the new version string.
func (e *Engine) RotateKeys(tenantID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.store.Get(tenantID, "")
	if err != nil {
		if !errdefs.IsKind(err, errdefs.KindNotFound) {
			return "", err
		}
		current = nil
	}

	next := 1
	if current != nil {
		n, err := strconv.Atoi(current.Version)
		if err != nil {
			return "", errdefs.Wrap(err, errdefs.KindInvalidFormat, "current key version %q is not numeric", current.Version)
		}
		next = n + 1
	}

	key, err := newKey(tenantID, strconv.Itoa(next))
	if err != nil {
		return "", err
	}
	if err := e.store.Store(tenantID, key); err != nil {
		return "", err
	}

	// The old version stays on disk for legacy decryption; only its active
	// flag changes.
	if current != nil {
		current.IsActive = false
		if err := e.store.Store(tenantID, current); err != nil {
			e.logger.Warn().
				Err(err).
				Str("tenant_id", tenantID).
				Msg("failed to mark previous key inactive")
		}
	}

	e.invalidateLocked(tenantID)

	e.logger.Info().
		Str("tenant_id", tenantID).
		Str("version", key.Version).
		Msg("rotated tenant key")
	return key.Version, nil
}

// GenerateTenantKey creates version "1" for a tenant that has no keys yet.
// Another process may have provisioned it first; the existing key wins, since
// ciphertext already written under it must stay decryptable.
func (e *Engine) GenerateTenantKey(tenantID string) (*types.TenantKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.Get(tenantID, "1")
	if err == nil {
		return existing, nil
	}
	if !errdefs.IsKind(err, errdefs.KindNotFound) {
		return nil, err
	}
	return e.generateLocked(tenantID)
}

// ValidateKeyIntegrity encrypts and decrypts a random probe and reports
// whether the round trip succeeded. It never returns an error.
func (e *Engine) ValidateKeyIntegrity(tenantID string) bool {
	probe := make([]byte, 24)
	if _, err := rand.Read(probe); err != nil {
		return false
	}
	plaintext := base64.StdEncoding.EncodeToString(probe)

	encrypted, err := e.Encrypt(plaintext, tenantID)
	if err != nil {
		return false
	}
	decrypted, err := e.Decrypt(encrypted, tenantID)
	if err != nil {
		return false
	}
	return decrypted == plaintext
}

// InvalidateTenant drops the tenant's cached key material
func (e *Engine) InvalidateTenant(tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked(tenantID)
}

func (e *Engine) invalidateLocked(tenantID string) {
	prefix := tenantID + "|"
	for k := range e.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.cache, k)
		}
	}
}

// activeKey returns the tenant's latest key, generating version "1" once if
// the tenant has none. The key directory is shared with other processes, so
// a cached "latest" is trusted only while it matches the newest version on
// disk; a rotation performed elsewhere takes effect on the next call.
func (e *Engine) activeKey(tenantID string) (*types.TenantKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	latest, err := e.store.LatestVersion(tenantID)
	if err != nil {
		return nil, err
	}

	if entry, ok := e.cache[tenantID+"|"+latestLabel]; ok &&
		time.Now().Before(entry.expiresAt) && entry.key.Version == latest {
		return entry.key, nil
	}

	var key *types.TenantKey
	if latest == "" {
		key, err = e.generateLocked(tenantID)
	} else {
		key, err = e.store.Get(tenantID, latest)
	}
	if err != nil {
		return nil, err
	}

	e.cacheLocked(tenantID, key, true)
	return key, nil
}

// keyVersion returns a specific key version for the tenant
func (e *Engine) keyVersion(tenantID, version string) (*types.TenantKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache[tenantID+"|"+version]; ok && time.Now().Before(entry.expiresAt) {
		return entry.key, nil
	}

	key, err := e.store.Get(tenantID, version)
	if err != nil {
		return nil, err
	}
	e.cacheLocked(tenantID, key, false)
	return key, nil
}

func (e *Engine) generateLocked(tenantID string) (*types.TenantKey, error) {
	key, err := newKey(tenantID, "1")
	if err != nil {
		return nil, err
	}
	if err := e.store.Store(tenantID, key); err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("tenant_id", tenantID).
		Msg("generated initial tenant key")
	return key, nil
}

func (e *Engine) cacheLocked(tenantID string, key *types.TenantKey, latest bool) {
	entry := cacheEntry{key: key, expiresAt: time.Now().Add(cacheTTL)}
	e.cache[tenantID+"|"+key.Version] = entry
	if latest {
		e.cache[tenantID+"|"+latestLabel] = entry
	}
}

func newKey(tenantID, version string) (*types.TenantKey, error) {
	material := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal, "failed to generate key material")
	}
	now := time.Now().UTC()
	return &types.TenantKey{
		TenantID:    tenantID,
		Version:     version,
		KeyMaterial: material,
		Algorithm:   types.KeyAlgorithm,
		CreatedAt:   now,
		ExpiresAt:   now.AddDate(1, 0, 0),
		IsActive:    true,
	}, nil
}

// checksum computes the field integrity checksum:
// SHA-256(ciphertext ":" keyVersion ":" fieldName ":" entityId), base64.
func checksum(f *types.EncryptedField) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%s", f.Ciphertext, f.KeyVersion, f.FieldName, f.EntityID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// seal encrypts plaintext with nonce prepended
func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts data produced by seal
func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
