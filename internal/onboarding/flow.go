package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/scheduling"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

// Onboarding progress markers stored on the organization.
const (
	StateAwaitingName    = "awaiting_name"
	StateAwaitingService = "awaiting_service"
	StateAwaitingHours   = "awaiting_hours"
	StateComplete        = "complete"
)

type orgStore interface {
	CreateOnboarding(ctx context.Context, p organizations.CreateOnboardingParams) (*organizations.Organization, error)
	AttachChannel(ctx context.Context, orgID uuid.UUID, phoneNumberID string) error
	UpdateOnboarding(ctx context.Context, orgID uuid.UUID, state, name string) error
	SetStatus(ctx context.Context, orgID uuid.UUID, status organizations.Status) error
}

type staffStore interface {
	Create(ctx context.Context, p staff.CreateParams) (*staff.Member, error)
	AssignService(ctx context.Context, memberID, serviceTypeID uuid.UUID) error
}

type catalogStore interface {
	CreateServiceType(ctx context.Context, orgID uuid.UUID, name string, durationMinutes, priceCents int) (*catalog.ServiceType, error)
	CreateLocation(ctx context.Context, orgID uuid.UUID, name, timezone string) (*catalog.Location, error)
}

type ruleStore interface {
	CreateRule(ctx context.Context, p scheduling.CreateRuleParams) (*scheduling.AvailabilityRule, error)
}

// Flow is the tenant onboarding state machine. The first message from
// an unknown channel creates the organization with a placeholder owner
// and location; the following messages collect the business name, one
// bookable service, and working hours, then activate the tenant.
type Flow struct {
	orgs    orgStore
	staff   staffStore
	catalog catalogStore
	rules   ruleStore

	defaultCountryCode string
	defaultTimezone    string
	logger             *slog.Logger
}

func NewFlow(orgs orgStore, staffStore staffStore, cat catalogStore, rules ruleStore, defaultCountryCode string, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		orgs:               orgs,
		staff:              staffStore,
		catalog:            cat,
		rules:              rules,
		defaultCountryCode: defaultCountryCode,
		defaultTimezone:    "America/Mexico_City",
		logger:             logger,
	}
}

// Start provisions a new onboarding tenant on first contact from an
// unknown channel.
func (f *Flow) Start(ctx context.Context, channelID, senderPhone, senderName string) (*organizations.Organization, string, error) {
	org, err := f.orgs.CreateOnboarding(ctx, organizations.CreateOnboardingParams{
		PhoneCountryCode: f.defaultCountryCode,
		PhoneNumber:      senderPhone,
		Timezone:         f.defaultTimezone,
	})
	if err != nil {
		return nil, "", fmt.Errorf("onboarding: create org: %w", err)
	}
	if err := f.orgs.AttachChannel(ctx, org.ID, channelID); err != nil {
		return nil, "", fmt.Errorf("onboarding: attach channel: %w", err)
	}

	ownerName := strings.TrimSpace(senderName)
	if ownerName == "" {
		ownerName = "Propietario"
	}
	owner, err := f.staff.Create(ctx, staff.CreateParams{
		OrgID:           org.ID,
		Name:            ownerName,
		PhoneNumber:     senderPhone,
		Role:            staff.RoleOwner,
		PermissionLevel: staff.PermissionOwner,
	})
	if err != nil {
		return nil, "", fmt.Errorf("onboarding: create owner: %w", err)
	}
	if _, err := f.catalog.CreateLocation(ctx, org.ID, "Principal", f.defaultTimezone); err != nil {
		return nil, "", fmt.Errorf("onboarding: create location: %w", err)
	}
	if err := f.orgs.UpdateOnboarding(ctx, org.ID, StateAwaitingName, ""); err != nil {
		return nil, "", fmt.Errorf("onboarding: advance state: %w", err)
	}

	f.logger.Info("onboarding started",
		slog.String("org_id", org.ID.String()),
		slog.String("owner_id", owner.ID.String()),
		slog.String("channel_id", channelID))
	reply := fmt.Sprintf("¡Hola %s! Soy el asistente que atenderá el WhatsApp de tu negocio. Para empezar, ¿cómo se llama tu negocio?", ownerName)
	return org, reply, nil
}

// Continue advances the onboarding conversation one step. Unparseable
// answers re-ask the current question without changing state.
func (f *Flow) Continue(ctx context.Context, org *organizations.Organization, owner *staff.Member, content string) (string, error) {
	switch org.OnboardingState {
	case StateAwaitingName, "initiated", "":
		return f.collectName(ctx, org, content)
	case StateAwaitingService:
		return f.collectService(ctx, org, owner, content)
	case StateAwaitingHours:
		return f.collectHours(ctx, org, owner, content)
	default:
		return "Tu negocio ya está configurado. Escribe al número de tu negocio para probar el asistente.", nil
	}
}

func (f *Flow) collectName(ctx context.Context, org *organizations.Organization, content string) (string, error) {
	name := strings.TrimSpace(content)
	if name == "" {
		return "¿Cómo se llama tu negocio?", nil
	}
	if err := f.orgs.UpdateOnboarding(ctx, org.ID, StateAwaitingService, name); err != nil {
		return "", fmt.Errorf("onboarding: save name: %w", err)
	}
	return fmt.Sprintf("¡Perfecto! %s quedó registrado. Ahora dime tu primer servicio con duración y precio, por ejemplo: Corte de cabello, 30 minutos, 250 pesos.", name), nil
}

func (f *Flow) collectService(ctx context.Context, org *organizations.Organization, owner *staff.Member, content string) (string, error) {
	name, minutes, priceCents, ok := parseServiceLine(content)
	if !ok {
		return "No entendí el servicio. Escríbelo así: Corte de cabello, 30 minutos, 250 pesos.", nil
	}
	svc, err := f.catalog.CreateServiceType(ctx, org.ID, name, minutes, priceCents)
	if err != nil {
		return "", fmt.Errorf("onboarding: create service: %w", err)
	}
	if err := f.staff.AssignService(ctx, owner.ID, svc.ID); err != nil {
		return "", fmt.Errorf("onboarding: assign service: %w", err)
	}
	if err := f.orgs.UpdateOnboarding(ctx, org.ID, StateAwaitingHours, ""); err != nil {
		return "", fmt.Errorf("onboarding: advance state: %w", err)
	}
	return fmt.Sprintf("Listo, %s de %d minutos. ¿En qué horario atiendes de lunes a viernes? Por ejemplo: 9:00-18:00.", svc.Name, minutes), nil
}

func (f *Flow) collectHours(ctx context.Context, org *organizations.Organization, owner *staff.Member, content string) (string, error) {
	startMin, endMin, ok := parseHoursRange(content)
	if !ok {
		return "No entendí el horario. Escríbelo así: 9:00-18:00.", nil
	}
	// Monday through Friday.
	for dow := 0; dow < 5; dow++ {
		_, err := f.rules.CreateRule(ctx, scheduling.CreateRuleParams{
			StaffID:     owner.ID,
			Type:        scheduling.RuleRecurring,
			DayOfWeek:   dow,
			StartMinute: startMin,
			EndMinute:   endMin,
			IsAvailable: true,
		})
		if err != nil {
			return "", fmt.Errorf("onboarding: create rule: %w", err)
		}
	}
	if err := f.orgs.UpdateOnboarding(ctx, org.ID, StateComplete, ""); err != nil {
		return "", fmt.Errorf("onboarding: advance state: %w", err)
	}
	if err := f.orgs.SetStatus(ctx, org.ID, organizations.StatusActive); err != nil {
		return "", fmt.Errorf("onboarding: activate: %w", err)
	}
	f.logger.Info("onboarding complete", slog.String("org_id", org.ID.String()))
	return "¡Tu asistente está listo! Tus clientes ya pueden escribir a este número para agendar citas. Tú puedes pedirme tu agenda o bloquear horarios cuando quieras.", nil
}

// parseServiceLine reads "name, NN minutos, PP pesos" with tolerant
// separators. Price converts to cents.
func parseServiceLine(content string) (name string, minutes, priceCents int, ok bool) {
	parts := strings.Split(content, ",")
	if len(parts) < 3 {
		return "", 0, 0, false
	}
	name = strings.TrimSpace(parts[0])
	minutes = firstInt(parts[1])
	price := firstInt(parts[2])
	if name == "" || minutes <= 0 || minutes > 12*60 || price <= 0 {
		return "", 0, 0, false
	}
	return name, minutes, price * 100, true
}

// parseHoursRange reads "9:00-18:00" or "9-18" as minutes from
// midnight.
func parseHoursRange(content string) (startMin, endMin int, ok bool) {
	cleaned := strings.TrimSpace(content)
	parts := strings.Split(cleaned, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	startMin, okStart := parseClock(parts[0])
	endMin, okEnd := parseClock(parts[1])
	if !okStart || !okEnd || startMin >= endMin {
		return 0, 0, false
	}
	return startMin, endMin, true
}

func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	hm := strings.SplitN(s, ":", 2)
	hour, err := strconv.Atoi(strings.TrimSpace(hm[0]))
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute := 0
	if len(hm) == 2 {
		minute, err = strconv.Atoi(strings.TrimSpace(hm[1]))
		if err != nil || minute < 0 || minute > 59 {
			return 0, false
		}
	}
	return hour*60 + minute, true
}

func firstInt(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
