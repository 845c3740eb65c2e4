package encryption

import (
	"encoding/base64"
	"testing"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return engineAt(t, t.TempDir())
}

// engineAt builds an engine over dir. Two engines over the same dir model the
// gateway and a worker sharing one key directory from separate processes.
func engineAt(t *testing.T, dir string) *Engine {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	store, err := keystore.NewStore(dir, key)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return NewEngine(store)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple", "hello"},
		{"empty", ""},
		{"unicode", "wünderbar ✓"},
		{"long", string(make([]byte, 4096))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := e.Encrypt(tt.plaintext, "acme")
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if encrypted == tt.plaintext && tt.plaintext != "" {
				t.Error("ciphertext equals plaintext")
			}
			decrypted, err := e.Decrypt(encrypted, "acme")
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("roundtrip = %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptIsNondeterministic(t *testing.T) {
	e := testEngine(t)
	a, err := e.Encrypt("same input", "acme")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := e.Encrypt("same input", "acme")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestTenantIsolation(t *testing.T) {
	e := testEngine(t)
	encrypted, err := e.Encrypt("secret", "acme")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	// Another tenant's key must not decrypt it
	if _, err := e.Decrypt(encrypted, "globex"); err == nil {
		t.Error("cross-tenant decrypt should fail")
	}
}

func TestFieldRoundtrip(t *testing.T) {
	e := testEngine(t)

	field, err := e.EncryptField("555-12-9999", "ssn", "42", "acme")
	if err != nil {
		t.Fatalf("EncryptField() error = %v", err)
	}
	if field.KeyVersion != "1" {
		t.Errorf("first field keyVersion = %q, want 1", field.KeyVersion)
	}
	if field.Checksum == "" || field.IV == "" {
		t.Error("field missing checksum or IV")
	}

	plain, err := e.DecryptField(field, "acme")
	if err != nil {
		t.Fatalf("DecryptField() error = %v", err)
	}
	if plain != "555-12-9999" {
		t.Errorf("DecryptField() = %q, want original plaintext", plain)
	}
}

func TestFieldTamperDetection(t *testing.T) {
	e := testEngine(t)

	tamper := []struct {
		name   string
		mutate func(f *types.EncryptedField)
	}{
		{"ciphertext flipped", func(f *types.EncryptedField) { f.Ciphertext = flipBase64(f.Ciphertext) }},
		{"checksum flipped", func(f *types.EncryptedField) { f.Checksum = flipBase64(f.Checksum) }},
		{"iv flipped", func(f *types.EncryptedField) { f.IV = flipBase64(f.IV) }},
		{"key version swapped", func(f *types.EncryptedField) { f.KeyVersion = "9" }},
		{"field name swapped", func(f *types.EncryptedField) { f.FieldName = "email" }},
		{"entity swapped", func(f *types.EncryptedField) { f.EntityID = "43" }},
	}

	for _, tt := range tamper {
		t.Run(tt.name, func(t *testing.T) {
			field, err := e.EncryptField("secret", "ssn", "42", "acme")
			if err != nil {
				t.Fatalf("EncryptField() error = %v", err)
			}
			mutated := *field
			tt.mutate(&mutated)

			_, err = e.DecryptField(&mutated, "acme")
			if !errdefs.IsKind(err, errdefs.KindIntegrityViolation) {
				t.Errorf("DecryptField() after tamper = %v, want IntegrityViolation", err)
			}
		})
	}
}

func TestRotationKeepsLegacyFieldsReadable(t *testing.T) {
	e := testEngine(t)

	before, err := e.EncryptField("old secret", "ssn", "1", "acme")
	if err != nil {
		t.Fatalf("EncryptField() error = %v", err)
	}

	version, err := e.RotateKeys("acme")
	if err != nil {
		t.Fatalf("RotateKeys() error = %v", err)
	}
	if version != "2" {
		t.Errorf("RotateKeys() version = %q, want 2", version)
	}

	after, err := e.EncryptField("new secret", "ssn", "2", "acme")
	if err != nil {
		t.Fatalf("EncryptField() after rotation error = %v", err)
	}
	if after.KeyVersion != "2" {
		t.Errorf("post-rotation keyVersion = %q, want 2", after.KeyVersion)
	}

	// The pre-rotation field decrypts with its recorded key version
	plain, err := e.DecryptField(before, "acme")
	if err != nil {
		t.Fatalf("DecryptField() of legacy field error = %v", err)
	}
	if plain != "old secret" {
		t.Errorf("legacy decrypt = %q, want old secret", plain)
	}
}

func TestRotationIsVisibleAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	gateway := engineAt(t, dir)
	worker := engineAt(t, dir)

	// Warm the worker's cache on version 1
	before, err := worker.EncryptField("old secret", "ssn", "1", "acme")
	if err != nil {
		t.Fatalf("EncryptField() error = %v", err)
	}
	if before.KeyVersion != "1" {
		t.Fatalf("pre-rotation keyVersion = %q, want 1", before.KeyVersion)
	}

	if _, err := gateway.RotateKeys("acme"); err != nil {
		t.Fatalf("RotateKeys() error = %v", err)
	}

	// The worker has no way to be signalled; it must pick the new version
	// up from the shared key directory despite its warm cache.
	after, err := worker.EncryptField("new secret", "ssn", "2", "acme")
	if err != nil {
		t.Fatalf("EncryptField() after rotation error = %v", err)
	}
	if after.KeyVersion != "2" {
		t.Errorf("post-rotation keyVersion = %q, want 2", after.KeyVersion)
	}

	plain, err := worker.DecryptField(before, "acme")
	if err != nil {
		t.Fatalf("DecryptField() of legacy field error = %v", err)
	}
	if plain != "old secret" {
		t.Errorf("legacy decrypt = %q, want old secret", plain)
	}
}

func TestGenerateTenantKeyKeepsExistingKey(t *testing.T) {
	dir := t.TempDir()
	worker := engineAt(t, dir)
	gateway := engineAt(t, dir)

	// The worker lazily provisions version 1 on first use
	encrypted, err := worker.Encrypt("secret", "acme")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// A later provision from the gateway must return the same key instead
	// of replacing the material already encrypted with
	key, err := gateway.GenerateTenantKey("acme")
	if err != nil {
		t.Fatalf("GenerateTenantKey() error = %v", err)
	}
	if key.Version != "1" {
		t.Errorf("version = %q, want 1", key.Version)
	}

	plain, err := gateway.Decrypt(encrypted, "acme")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "secret" {
		t.Errorf("Decrypt() = %q, want secret", plain)
	}
}

func TestValidateKeyIntegrity(t *testing.T) {
	e := testEngine(t)
	if !e.ValidateKeyIntegrity("acme") {
		t.Error("ValidateKeyIntegrity() = false for a fresh tenant")
	}
}

// flipBase64 decodes, flips the first byte, and re-encodes
func flipBase64(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return encoded + "x"
	}
	raw[0] ^= 0xFF
	return base64.StdEncoding.EncodeToString(raw)
}
