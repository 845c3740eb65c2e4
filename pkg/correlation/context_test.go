package correlation

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	c := New()
	if c.CorrelationID == "" {
		t.Error("New() should mint a correlation ID")
	}
	if c.RequestID == "" {
		t.Error("New() should mint a request ID")
	}
	if c.Timestamp.IsZero() {
		t.Error("New() should stamp the creation time")
	}
}

func TestChild(t *testing.T) {
	parent := New()
	parent.TenantID = "acme"
	parent.UserID = "u-1"
	parent.SessionID = "s-1"

	child := parent.Child()

	if child.CorrelationID == parent.CorrelationID {
		t.Error("child must get a fresh correlation ID")
	}
	if child.ParentID != parent.CorrelationID {
		t.Errorf("child.ParentID = %q, want parent correlation ID %q", child.ParentID, parent.CorrelationID)
	}
	if child.RequestID != parent.RequestID {
		t.Error("child should inherit the request ID")
	}
	if child.TenantID != "acme" || child.UserID != "u-1" || child.SessionID != "s-1" {
		t.Error("child should inherit tenant, user, and session")
	}
}

func TestWithTenantLeavesOriginalUntouched(t *testing.T) {
	orig := New()
	ctx := Install(context.Background(), orig)

	derived := orig.WithTenant("acme")
	ctx = Install(ctx, derived)

	if derived.TenantID != "acme" {
		t.Errorf("derived.TenantID = %q, want acme", derived.TenantID)
	}
	if orig.TenantID != "" {
		t.Errorf("original snapshot mutated: TenantID = %q", orig.TenantID)
	}
	if got := FromContext(ctx); got.TenantID != "acme" {
		t.Errorf("FromContext().TenantID = %q, want acme", got.TenantID)
	}
	if derived.CorrelationID != orig.CorrelationID {
		t.Error("WithTenant must keep the correlation ID")
	}
}

func TestFromContext(t *testing.T) {
	// A bare context yields a fresh correlation, never nil
	c := FromContext(context.Background())
	if c == nil {
		t.Fatal("FromContext() returned nil")
	}
	if c.CorrelationID == "" {
		t.Error("fresh correlation should have an ID")
	}

	// An installed correlation is returned as-is
	installed := New()
	ctx := Install(context.Background(), installed)
	if got := FromContext(ctx); got.CorrelationID != installed.CorrelationID {
		t.Errorf("FromContext() = %q, want installed %q", got.CorrelationID, installed.CorrelationID)
	}
}
