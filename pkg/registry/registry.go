package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

var bucketTenants = []byte("tenants")

// Registry is the tenant catalog: the only source of truth for tenant
// existence. Descriptors persist in BoltDB and are mirrored in an in-memory
// index so lookups on the request path are O(1) with no disk I/O.
type Registry struct {
	db     *bolt.DB
	logger zerolog.Logger

	mu    sync.RWMutex
	index map[string]*types.TenantDescriptor
}

// Open creates or opens the tenant catalog in dataDir
func Open(dataDir string) (*Registry, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTenants)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tenants bucket: %w", err)
	}

	r := &Registry{
		db:     db,
		logger: log.WithComponent("registry"),
		index:  make(map[string]*types.TenantDescriptor),
	}
	if err := r.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the catalog database
func (r *Registry) Close() error {
	return r.db.Close()
}

// Seed inserts descriptors from configuration that are not already present.
// Existing catalog entries win over config so runtime edits survive restart.
func (r *Registry) Seed(tenants []types.TenantDescriptor) error {
	for i := range tenants {
		t := tenants[i]
		if _, err := r.Get(t.TenantID); err == nil {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		if err := r.Add(&t); err != nil {
			return err
		}
	}
	return nil
}

// Add inserts a new tenant descriptor
func (r *Registry) Add(t *types.TenantDescriptor) error {
	if !types.TenantIDPattern.MatchString(t.TenantID) {
		return errdefs.New(errdefs.KindInvalidFormat, "invalid tenant id %q", t.TenantID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[t.TenantID]; exists {
		return errdefs.New(errdefs.KindInvalidFormat, "tenant %s already exists", t.TenantID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := r.put(t); err != nil {
		return err
	}
	r.index[t.TenantID] = t

	r.logger.Info().
		Str("tenant_id", t.TenantID).
		Msg("tenant added to catalog")
	return nil
}

// Update replaces an existing tenant descriptor
func (r *Registry) Update(t *types.TenantDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[t.TenantID]; !exists {
		return errdefs.New(errdefs.KindUnknownTenant, "tenant %s not found", t.TenantID)
	}
	if err := r.put(t); err != nil {
		return err
	}
	r.index[t.TenantID] = t
	return nil
}

// Delete removes a tenant from the catalog
func (r *Registry) Delete(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[tenantID]; !exists {
		return errdefs.New(errdefs.KindUnknownTenant, "tenant %s not found", tenantID)
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTenants).Delete([]byte(tenantID))
	})
	if err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to delete tenant %s", tenantID)
	}
	delete(r.index, tenantID)

	r.logger.Info().
		Str("tenant_id", tenantID).
		Msg("tenant removed from catalog")
	return nil
}

// Get returns a tenant descriptor or UnknownTenant
func (r *Registry) Get(tenantID string) (*types.TenantDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.index[tenantID]
	if !ok {
		return nil, errdefs.New(errdefs.KindUnknownTenant, "tenant %s not found", tenantID)
	}
	return t, nil
}

// List returns all tenant descriptors
func (r *Registry) List() []*types.TenantDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.TenantDescriptor, 0, len(r.index))
	for _, t := range r.index {
		out = append(out, t)
	}
	return out
}

func (r *Registry) put(t *types.TenantDescriptor) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTenants).Put([]byte(t.TenantID), data)
	})
	if err != nil {
		return errdefs.Wrap(err, errdefs.KindStorageFailure, "failed to persist tenant %s", t.TenantID)
	}
	return nil
}

func (r *Registry) loadIndex() error {
	return r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTenants).ForEach(func(k, v []byte) error {
			var t types.TenantDescriptor
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to decode tenant %s: %w", k, err)
			}
			r.index[t.TenantID] = &t
			return nil
		})
	})
}
