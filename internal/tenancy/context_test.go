package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestOrgIDRoundTrip(t *testing.T) {
	orgID := uuid.New()
	ctx := WithOrgID(context.Background(), orgID)

	got, ok := OrgIDFromContext(ctx)
	if !ok {
		t.Fatal("expected org id in context")
	}
	if got != orgID {
		t.Fatalf("expected %s, got %s", orgID, got)
	}
}

func TestOrgIDMissing(t *testing.T) {
	if _, ok := OrgIDFromContext(context.Background()); ok {
		t.Fatal("expected no org id in empty context")
	}
}
