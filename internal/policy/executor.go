package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/scheduling"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

// ResultKind names the outcome of an executed action.
type ResultKind string

const (
	ResultSlots        ResultKind = "slots"
	ResultBooked       ResultKind = "booked"
	ResultConflicts    ResultKind = "conflicts"
	ResultSlotTaken    ResultKind = "slot_taken"
	ResultCancelled    ResultKind = "cancelled"
	ResultAppointments ResultKind = "appointments"
	ResultNotFound     ResultKind = "not_found"
	ResultNeedsStaff   ResultKind = "needs_staff"
)

// ActionResult is the structured outcome fed back to the engine so it
// can phrase the final reply.
type ActionResult struct {
	Kind         ResultKind
	Slots        []scheduling.Slot
	Appointment  *scheduling.Appointment
	Appointments []scheduling.Appointment
	Conflicts    []scheduling.Appointment
	Service      *catalog.ServiceType
}

type appointmentStore interface {
	FindConflicts(ctx context.Context, q scheduling.ConflictQuery) ([]scheduling.Appointment, error)
	Create(ctx context.Context, p scheduling.CreateParams) (*scheduling.Appointment, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*scheduling.Appointment, error)
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status scheduling.AppointmentStatus, note string) error
	ListUpcomingForCustomer(ctx context.Context, orgID, customerID uuid.UUID, from time.Time) ([]scheduling.Appointment, error)
	ListUpcoming(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]scheduling.Appointment, error)
}

type slotFinder interface {
	FindSlots(ctx context.Context, q scheduling.SlotQuery) ([]scheduling.Slot, error)
}

type catalogSource interface {
	GetServiceType(ctx context.Context, orgID, id uuid.UUID) (*catalog.ServiceType, error)
	DefaultLocation(ctx context.Context, orgID uuid.UUID) (*catalog.Location, error)
}

type memberSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*staff.Member, error)
}

// Executor runs engine actions against the scheduling core. Booking is
// optimistic: a pre-flight conflict check, then the insert, with the
// storage-layer overlap rejection translated into the same slot-taken
// outcome as a pre-flight conflict.
type Executor struct {
	appointments appointmentStore
	slots        slotFinder
	catalog      catalogSource
	staff        memberSource
	now          func() time.Time
}

func NewExecutor(appointments appointmentStore, slots slotFinder, cat catalogSource, members memberSource) *Executor {
	return &Executor{
		appointments: appointments,
		slots:        slots,
		catalog:      cat,
		staff:        members,
		now:          time.Now,
	}
}

// Execute runs one action on behalf of a customer.
func (e *Executor) Execute(ctx context.Context, org *organizations.Organization, customerID uuid.UUID, action Action) (ActionResult, error) {
	switch action.Kind {
	case ActionCheckAvailability:
		return e.checkAvailability(ctx, org, action)
	case ActionBook:
		return e.book(ctx, org, customerID, action)
	case ActionCancel:
		return e.cancel(ctx, org, customerID, action)
	case ActionListAppointments:
		return e.list(ctx, org, customerID)
	default:
		return ActionResult{}, fmt.Errorf("policy: unknown action %q", action.Kind)
	}
}

func (e *Executor) checkAvailability(ctx context.Context, org *organizations.Organization, action Action) (ActionResult, error) {
	svc, err := e.catalog.GetServiceType(ctx, org.ID, action.ServiceTypeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ActionResult{Kind: ResultNotFound}, nil
		}
		return ActionResult{}, err
	}
	from := action.DateFrom
	if from.IsZero() {
		from = e.now()
	}
	to := action.DateTo
	if to.IsZero() {
		to = from.AddDate(0, 0, org.Settings.BookingWindowDays)
	}
	slots, err := e.slots.FindSlots(ctx, scheduling.SlotQuery{
		OrgID:         org.ID,
		ServiceTypeID: action.ServiceTypeID,
		StaffID:       action.StaffID,
		From:          from,
		To:            to,
		Location:      org.Location(),
	})
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Kind: ResultSlots, Slots: slots, Service: svc}, nil
}

func (e *Executor) book(ctx context.Context, org *organizations.Organization, customerID uuid.UUID, action Action) (ActionResult, error) {
	svc, err := e.catalog.GetServiceType(ctx, org.ID, action.ServiceTypeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ActionResult{Kind: ResultNotFound}, nil
		}
		return ActionResult{}, err
	}
	loc, err := e.catalog.DefaultLocation(ctx, org.ID)
	if err != nil {
		return ActionResult{}, err
	}

	var spotID *uuid.UUID
	if action.StaffID != nil {
		member, err := e.staff.GetByID(ctx, *action.StaffID)
		if err != nil && !errors.Is(err, staff.ErrNotFound) {
			return ActionResult{}, err
		}
		if member != nil {
			spotID = member.DefaultSpotID
		}
	}

	// An appointment occupies a staff member's calendar, a spot, or
	// both. With neither resolved there is nothing to reserve and the
	// engine has to ask the sender who the booking is for.
	if action.StaffID == nil && spotID == nil {
		return ActionResult{Kind: ResultNeedsStaff, Service: svc}, nil
	}

	start := action.Start
	end := start.Add(svc.Duration())
	conflicts, err := e.appointments.FindConflicts(ctx, scheduling.ConflictQuery{
		OrgID:   org.ID,
		StaffID: action.StaffID,
		SpotID:  spotID,
		Start:   start,
		End:     end,
	})
	if err != nil {
		return ActionResult{}, err
	}
	if len(conflicts) > 0 {
		return ActionResult{Kind: ResultConflicts, Conflicts: conflicts, Service: svc}, nil
	}

	appt, err := e.appointments.Create(ctx, scheduling.CreateParams{
		OrgID:         org.ID,
		LocationID:    loc.ID,
		CustomerID:    customerID,
		ServiceTypeID: svc.ID,
		StaffID:       action.StaffID,
		SpotID:        spotID,
		Start:         start,
		End:           end,
	})
	if err != nil {
		// Lost the race after a clean pre-flight check.
		if errors.Is(err, scheduling.ErrSlotTaken) {
			return ActionResult{Kind: ResultSlotTaken, Service: svc}, nil
		}
		return ActionResult{}, err
	}
	return ActionResult{Kind: ResultBooked, Appointment: appt, Service: svc}, nil
}

func (e *Executor) cancel(ctx context.Context, org *organizations.Organization, customerID uuid.UUID, action Action) (ActionResult, error) {
	appt, err := e.appointments.GetByID(ctx, org.ID, action.AppointmentID)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			return ActionResult{Kind: ResultNotFound}, nil
		}
		return ActionResult{}, err
	}
	// Customers can only touch their own appointments.
	if customerID != uuid.Nil && appt.CustomerID != customerID {
		return ActionResult{Kind: ResultNotFound}, nil
	}
	if err := e.appointments.UpdateStatus(ctx, org.ID, appt.ID, scheduling.StatusCancelled, action.Reason); err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			return ActionResult{Kind: ResultNotFound}, nil
		}
		return ActionResult{}, err
	}
	appt.Status = scheduling.StatusCancelled
	return ActionResult{Kind: ResultCancelled, Appointment: appt}, nil
}

func (e *Executor) list(ctx context.Context, org *organizations.Organization, customerID uuid.UUID) (ActionResult, error) {
	// Staff (no customer identity) see the org's whole upcoming
	// calendar; customers see only their own appointments.
	var appts []scheduling.Appointment
	var err error
	if customerID == uuid.Nil {
		now := e.now()
		appts, err = e.appointments.ListUpcoming(ctx, org.ID, now, now.AddDate(0, 0, 7))
	} else {
		appts, err = e.appointments.ListUpcomingForCustomer(ctx, org.ID, customerID, e.now())
	}
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Kind: ResultAppointments, Appointments: appts}, nil
}
