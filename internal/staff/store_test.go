package staff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func memberRows(id, orgID uuid.UUID, active bool) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "organization_id", "location_id", "default_spot_id", "name",
		"phone_number", "role", "permission_level", "permissions", "is_active",
		"first_message_at", "created_at", "updated_at",
	}).AddRow(id, orgID, (*uuid.UUID)(nil), (*uuid.UUID)(nil), "Carlos",
		"+5215512345678", RoleOwner, PermissionOwner, []byte(`{"can_book":true}`), active,
		(*time.Time)(nil), now, now)
}

func TestGetActiveByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newStoreWithQuerier(mock)
	memberID := uuid.New()
	orgID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM staff_members").
		WithArgs(orgID, "+5215512345678").
		WillReturnRows(memberRows(memberID, orgID, true))

	m, err := store.GetActiveByPhone(context.Background(), orgID, "+5215512345678")
	if err != nil {
		t.Fatalf("get active by phone: %v", err)
	}
	if m.ID != memberID {
		t.Fatalf("expected member %s, got %s", memberID, m.ID)
	}
	if !m.Permissions.CanBook {
		t.Fatal("expected decoded permissions")
	}
}

func TestGetActiveByPhoneNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT (.+) FROM staff_members").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	if _, err := store.GetActiveByPhone(context.Background(), uuid.New(), "+10000000000"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkFirstMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newStoreWithQuerier(mock)
	memberID := uuid.New()

	mock.ExpectExec("UPDATE staff_members").
		WithArgs(memberID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	set, err := store.MarkFirstMessage(context.Background(), memberID)
	if err != nil {
		t.Fatalf("mark first message: %v", err)
	}
	if !set {
		t.Fatal("expected first message stamp to be set")
	}

	// Second call finds first_message_at already set.
	mock.ExpectExec("UPDATE staff_members").
		WithArgs(memberID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	set, err = store.MarkFirstMessage(context.Background(), memberID)
	if err != nil {
		t.Fatalf("mark first message again: %v", err)
	}
	if set {
		t.Fatal("expected stamp to be set only once")
	}
}

func TestListCapable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newStoreWithQuerier(mock)
	orgID := uuid.New()
	serviceID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM staff_members m").
		WithArgs(orgID, serviceID).
		WillReturnRows(memberRows(uuid.New(), orgID, true))

	members, err := store.ListCapable(context.Background(), orgID, serviceID)
	if err != nil {
		t.Fatalf("list capable: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
}

func TestDefaultPermissions(t *testing.T) {
	if !DefaultPermissions(PermissionOwner).CanManageStaff {
		t.Error("owner should manage staff")
	}
	if DefaultPermissions(PermissionStaff).CanManageStaff {
		t.Error("staff should not manage staff")
	}
	if DefaultPermissions(PermissionViewer).CanBook {
		t.Error("viewer should not book")
	}
}
