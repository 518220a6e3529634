package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

type orgSource interface {
	GetByChannelID(ctx context.Context, channelID string) (*organizations.Organization, error)
}

type staffSource interface {
	GetActiveByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*staff.Member, error)
	MarkFirstMessage(ctx context.Context, id uuid.UUID) (bool, error)
}

type customerSource interface {
	GetOrCreateByPhone(ctx context.Context, orgID uuid.UUID, phone, name string) (*customers.Customer, error)
}

// Resolution is the outcome of identity resolution for one inbound
// message. Org is nil when the channel is unknown. Exactly one of
// Staff/Customer is set when Role is staff or customer.
type Resolution struct {
	Org      *organizations.Organization
	Role     Role
	Staff    *staff.Member
	Customer *customers.Customer
}

// Resolver maps (tenant channel, sender phone) to an organization and
// a sender identity.
type Resolver struct {
	orgs      orgSource
	staff     staffSource
	customers customerSource
}

func NewResolver(orgs orgSource, staffStore staffSource, customerStore customerSource) *Resolver {
	return &Resolver{orgs: orgs, staff: staffStore, customers: customerStore}
}

// Resolve identifies the tenant and the sender. An unknown channel is
// not an error: it resolves to a nil org, the onboarding candidate
// case. Staff identity wins over customer identity, but only active
// staff count; an inactive staff record with the sender's phone falls
// through to the customer path. Customers are created on first contact
// with only a phone number, seeded with the display name when present.
func (r *Resolver) Resolve(ctx context.Context, channelID, phone, displayName string) (*Resolution, error) {
	org, err := r.orgs.GetByChannelID(ctx, channelID)
	if err != nil {
		if errors.Is(err, organizations.ErrNotFound) {
			return &Resolution{Role: RoleNone}, nil
		}
		return nil, fmt.Errorf("routing: resolve channel: %w", err)
	}

	member, err := r.staff.GetActiveByPhone(ctx, org.ID, phone)
	if err == nil {
		if member.FirstMessageAt == nil {
			if _, err := r.staff.MarkFirstMessage(ctx, member.ID); err != nil {
				return nil, fmt.Errorf("routing: mark first message: %w", err)
			}
		}
		return &Resolution{Org: org, Role: RoleStaff, Staff: member}, nil
	}
	if !errors.Is(err, staff.ErrNotFound) {
		return nil, fmt.Errorf("routing: resolve staff: %w", err)
	}

	// Customers only exist for active tenants. While the tenant is
	// still onboarding the sender stays unresolved.
	if org.Status != organizations.StatusActive {
		return &Resolution{Org: org, Role: RoleNone}, nil
	}
	customer, err := r.customers.GetOrCreateByPhone(ctx, org.ID, phone, displayName)
	if err != nil {
		return nil, fmt.Errorf("routing: resolve customer: %w", err)
	}
	return &Resolution{Org: org, Role: RoleCustomer, Customer: customer}, nil
}
