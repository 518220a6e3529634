package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

type serviceCatalog interface {
	GetServiceType(ctx context.Context, orgID, id uuid.UUID) (*catalog.ServiceType, error)
}

type staffDirectory interface {
	ListCapable(ctx context.Context, orgID, serviceTypeID uuid.UUID) ([]staff.Member, error)
}

type calendarSource interface {
	ListRules(ctx context.Context, staffIDs []uuid.UUID, from, to time.Time) ([]AvailabilityRule, error)
	ListBusy(ctx context.Context, orgID uuid.UUID, staffIDs, spotIDs []uuid.UUID, from, to time.Time) ([]Appointment, error)
}

// Slot is a bookable opening for one staff member.
type Slot struct {
	Start     time.Time
	End       time.Time
	StaffID   uuid.UUID
	StaffName string
}

// SlotQuery asks for openings for one service over a date range.
// StaffID narrows the search to a single staff member. Location is the
// org's timezone; working windows are anchored to local midnight there.
type SlotQuery struct {
	OrgID         uuid.UUID
	ServiceTypeID uuid.UUID
	StaffID       *uuid.UUID
	From          time.Time
	To            time.Time
	Location      *time.Location
}

// Engine computes open slots by intersecting working windows with the
// booked calendar. Candidate starts advance on a fixed grid from the
// start of each window; the full service duration must fit inside the
// window and clear every busy interval.
type Engine struct {
	catalog  serviceCatalog
	staff    staffDirectory
	calendar calendarSource
	step     time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

func NewEngine(cat serviceCatalog, dir staffDirectory, cal calendarSource, step time.Duration) *Engine {
	if step <= 0 {
		step = 15 * time.Minute
	}
	return &Engine{
		catalog:  cat,
		staff:    dir,
		calendar: cal,
		step:     step,
		now:      time.Now,
		tracer:   otel.Tracer("parlo.scheduling"),
	}
}

// FindSlots returns the open slots for the query, ordered by start time
// and then staff name. Slots that begin in the past are omitted.
func (e *Engine) FindSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	ctx, span := e.tracer.Start(ctx, "availability.find_slots",
		trace.WithAttributes(
			attribute.String("org.id", q.OrgID.String()),
			attribute.String("service_type.id", q.ServiceTypeID.String()),
		))
	defer span.End()

	svc, err := e.catalog.GetServiceType(ctx, q.OrgID, q.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: availability: %w", err)
	}
	members, err := e.staff.ListCapable(ctx, q.OrgID, q.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: availability: %w", err)
	}
	if q.StaffID != nil {
		filtered := members[:0]
		for _, m := range members {
			if m.ID == *q.StaffID {
				filtered = append(filtered, m)
			}
		}
		members = filtered
	}
	if len(members) == 0 {
		return nil, nil
	}

	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	fromDay := startOfDay(q.From.In(loc))
	toDay := startOfDay(q.To.In(loc))

	ids := make([]uuid.UUID, len(members))
	var spotIDs []uuid.UUID
	seenSpots := make(map[uuid.UUID]bool)
	for i, m := range members {
		ids[i] = m.ID
		if m.DefaultSpotID != nil && !seenSpots[*m.DefaultSpotID] {
			seenSpots[*m.DefaultSpotID] = true
			spotIDs = append(spotIDs, *m.DefaultSpotID)
		}
	}
	rules, err := e.calendar.ListRules(ctx, ids, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("scheduling: availability: %w", err)
	}
	appts, err := e.calendar.ListBusy(ctx, q.OrgID, ids, spotIDs, fromDay, toDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("scheduling: availability: %w", err)
	}

	rulesByStaff := make(map[uuid.UUID][]AvailabilityRule)
	for _, r := range rules {
		rulesByStaff[r.StaffID] = append(rulesByStaff[r.StaffID], r)
	}
	// A member is busy when they hold the appointment themselves and
	// when any appointment occupies their default spot.
	busyByStaff := make(map[uuid.UUID][]Interval)
	busyBySpot := make(map[uuid.UUID][]Interval)
	for _, a := range appts {
		iv := Interval{Start: a.ScheduledStart, End: a.ScheduledEnd}
		if a.StaffID != nil {
			busyByStaff[*a.StaffID] = append(busyByStaff[*a.StaffID], iv)
		}
		if a.SpotID != nil {
			busyBySpot[*a.SpotID] = append(busyBySpot[*a.SpotID], iv)
		}
	}

	now := e.now()
	dur := svc.Duration()
	var slots []Slot
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		for _, m := range members {
			for _, win := range workingWindows(rulesByStaff[m.ID], day) {
				for start := win.Start; !start.Add(dur).After(win.End); start = start.Add(e.step) {
					if start.Before(now) {
						continue
					}
					cand := Interval{Start: start, End: start.Add(dur)}
					if overlapsAny(cand, busyByStaff[m.ID]) {
						continue
					}
					if m.DefaultSpotID != nil && overlapsAny(cand, busyBySpot[*m.DefaultSpotID]) {
						continue
					}
					slots = append(slots, Slot{Start: cand.Start, End: cand.End, StaffID: m.ID, StaffName: m.Name})
				}
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].StaffName < slots[j].StaffName
	})
	span.SetAttributes(attribute.Int("slots.count", len(slots)))
	return slots, nil
}

// workingWindows resolves one staff member's windows for a calendar
// day. Any exception dated that day replaces the recurring pattern
// entirely; an unavailable exception yields no windows.
func workingWindows(rules []AvailabilityRule, day time.Time) []Interval {
	var windows []Interval
	var hasException bool
	for _, r := range rules {
		if r.Type != RuleException || r.ExceptionDate == nil || !sameDate(*r.ExceptionDate, day) {
			continue
		}
		hasException = true
		if r.IsAvailable {
			windows = append(windows, minuteWindow(day, r.StartMinute, r.EndMinute))
		}
	}
	if hasException {
		return windows
	}
	dow := mondayIndexed(day.Weekday())
	for _, r := range rules {
		if r.Type == RuleRecurring && r.DayOfWeek == dow && r.IsAvailable {
			windows = append(windows, minuteWindow(day, r.StartMinute, r.EndMinute))
		}
	}
	return windows
}

// mondayIndexed converts Go's Sunday-first weekday to the stored
// Monday-first index.
func mondayIndexed(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func minuteWindow(day time.Time, startMin, endMin int) Interval {
	return Interval{
		Start: day.Add(time.Duration(startMin) * time.Minute),
		End:   day.Add(time.Duration(endMin) * time.Minute),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
