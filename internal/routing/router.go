package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diegovillafuerte/parlo/internal/conversations"
	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/observability/metrics"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/staff"
	"github.com/diegovillafuerte/parlo/internal/tenancy"
	"github.com/diegovillafuerte/parlo/internal/whatsapp"
)

type identitySource interface {
	Resolve(ctx context.Context, channelID, phone, displayName string) (*Resolution, error)
}

type messageStore interface {
	BeginProcessing(ctx context.Context, waMessageID string) (bool, error)
	GetOrCreateActive(ctx context.Context, orgID, customerID uuid.UUID) (*conversations.Conversation, error)
	RecordInbound(ctx context.Context, p conversations.RecordParams) (*conversations.Message, error)
	RecordOutbound(ctx context.Context, p conversations.RecordParams) (*conversations.Message, error)
}

type orgActivity interface {
	TouchLastMessage(ctx context.Context, orgID uuid.UUID, at time.Time) error
}

// OnboardingFlow walks a new business owner through setup. Start runs
// on the first contact from an unknown channel and creates the
// onboarding organization; Continue advances an existing onboarding
// conversation.
type OnboardingFlow interface {
	Start(ctx context.Context, channelID, senderPhone, senderName string) (*organizations.Organization, string, error)
	Continue(ctx context.Context, org *organizations.Organization, owner *staff.Member, content string) (string, error)
}

// StaffHandler answers a staff member's message.
type StaffHandler interface {
	HandleStaff(ctx context.Context, org *organizations.Organization, member *staff.Member, content string) (string, error)
}

// CustomerHandler answers a customer's message inside their active
// conversation.
type CustomerHandler interface {
	HandleCustomer(ctx context.Context, org *organizations.Organization, customer *customers.Customer, conv *conversations.Conversation, content string) (string, error)
}

// Router is the inbound message orchestrator. Evaluation order:
// duplicate, unknown channel, onboarding owner, active staff, active
// customer. Every non-duplicate message gets exactly one outbound send,
// falling back to a canned reply when the handler fails.
type Router struct {
	identity   identitySource
	store      messageStore
	orgs       orgActivity
	onboarding OnboardingFlow
	staff      StaffHandler
	customer   CustomerHandler
	sender     whatsapp.Sender

	defaultCountryCode string
	fallbackReply      string
	notReadyReply      string

	logger  *slog.Logger
	metrics *metrics.RoutingMetrics
	tracer  trace.Tracer
}

// Config wires the router's collaborators. All of them are required
// except Metrics.
type Config struct {
	Identity   identitySource
	Store      messageStore
	Orgs       orgActivity
	Onboarding OnboardingFlow
	Staff      StaffHandler
	Customer   CustomerHandler
	Sender     whatsapp.Sender

	DefaultCountryCode string
	FallbackReply      string
	NotReadyReply      string

	Logger  *slog.Logger
	Metrics *metrics.RoutingMetrics
}

func NewRouter(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = "Lo siento, tuvimos un problema. Intenta de nuevo en un momento."
	}
	if cfg.NotReadyReply == "" {
		cfg.NotReadyReply = "Este negocio todavía está configurando su asistente. Intenta más tarde."
	}
	return &Router{
		identity:           cfg.Identity,
		store:              cfg.Store,
		orgs:               cfg.Orgs,
		onboarding:         cfg.Onboarding,
		staff:              cfg.Staff,
		customer:           cfg.Customer,
		sender:             cfg.Sender,
		defaultCountryCode: cfg.DefaultCountryCode,
		fallbackReply:      cfg.FallbackReply,
		notReadyReply:      cfg.NotReadyReply,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		tracer:             otel.Tracer("parlo.routing"),
	}
}

// Route processes one inbound message end to end. It is idempotent per
// message id: a second delivery short-circuits with a duplicate result
// and no side effects, even under concurrent delivery.
func (r *Router) Route(ctx context.Context, msg InboundMessage) (RoutingResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "routing.route",
		trace.WithAttributes(
			attribute.String("channel.id", msg.TenantChannelID),
			attribute.String("message.id", msg.MessageID),
		))
	defer span.End()

	result, err := r.route(ctx, msg)

	span.SetAttributes(
		attribute.String("routing.decision", string(result.Decision)),
		attribute.String("routing.status", string(result.Status)),
	)
	r.metrics.ObserveRouted(string(result.Decision), string(result.Status))
	r.metrics.ObserveRouteLatency(string(result.Decision), time.Since(start).Seconds())
	return result, err
}

func (r *Router) route(ctx context.Context, msg InboundMessage) (RoutingResult, error) {
	first, err := r.store.BeginProcessing(ctx, msg.MessageID)
	if err != nil {
		return RoutingResult{Decision: DecisionDuplicate, Status: StatusError}, fmt.Errorf("routing: dedup: %w", err)
	}
	if !first {
		r.logger.Info("duplicate message", slog.String("wa_message_id", msg.MessageID))
		return RoutingResult{Decision: DecisionDuplicate, Status: StatusDuplicate, Role: RoleNone}, nil
	}

	phone, err := whatsapp.NormalizePhone(msg.SenderPhone, r.defaultCountryCode)
	if err != nil {
		return RoutingResult{Status: StatusError, Role: RoleNone}, fmt.Errorf("routing: %w", err)
	}

	res, err := r.identity.Resolve(ctx, msg.TenantChannelID, phone, msg.SenderName)
	if err != nil {
		// Identity is a hard dependency: without it there is no org to
		// record against, only the apology to send.
		r.logger.Error("identity resolution failed", slog.String("error", err.Error()))
		r.send(ctx, msg.TenantChannelID, phone, r.fallbackReply)
		return RoutingResult{Status: StatusError, Role: RoleNone}, err
	}

	switch {
	case res.Org == nil:
		return r.routeOnboardingStart(ctx, msg, phone)
	case res.Role == RoleStaff && res.Org.Status == organizations.StatusOnboarding && res.Staff.Role == staff.RoleOwner:
		return r.routeOnboardingContinue(ctx, msg, phone, res)
	case res.Role == RoleStaff && res.Org.Status == organizations.StatusActive:
		return r.routeStaff(ctx, msg, phone, res)
	case res.Role == RoleCustomer:
		return r.routeCustomer(ctx, msg, phone, res)
	default:
		// Tenant exists but is not active and the sender is not its
		// owner. Acknowledge without engaging any handler.
		return r.routeNotReady(ctx, msg, phone, res)
	}
}

func (r *Router) routeOnboardingStart(ctx context.Context, msg InboundMessage, phone string) (RoutingResult, error) {
	result := RoutingResult{Decision: DecisionOnboardingStart, Role: RoleStaff}
	org, reply, handlerErr := r.invokeOnboardingStart(ctx, msg, phone)
	result.Status = StatusOK
	if handlerErr != nil {
		r.logger.Error("onboarding start failed",
			slog.String("channel_id", msg.TenantChannelID),
			slog.String("error", handlerErr.Error()))
		result.Status = StatusError
		reply = r.fallbackReply
	} else {
		result.OrgID = org.ID
		ctx = tenancy.WithOrgID(ctx, org.ID)
		r.recordInbound(ctx, org.ID, nil, conversations.SenderStaff, msg)
	}
	result.Reply = reply
	if r.send(ctx, msg.TenantChannelID, phone, reply) {
		if org != nil {
			r.recordOutbound(ctx, org.ID, nil, reply)
		}
	} else {
		result.Status = StatusError
	}
	return result, nil
}

func (r *Router) invokeOnboardingStart(ctx context.Context, msg InboundMessage, phone string) (org *organizations.Organization, reply string, err error) {
	defer recoverHandler(r.logger, &err)
	return r.onboarding.Start(ctx, msg.TenantChannelID, phone, msg.SenderName)
}

func (r *Router) routeOnboardingContinue(ctx context.Context, msg InboundMessage, phone string, res *Resolution) (RoutingResult, error) {
	ctx = tenancy.WithOrgID(ctx, res.Org.ID)
	result := RoutingResult{Decision: DecisionOnboardingContinue, OrgID: res.Org.ID, Role: RoleStaff}
	r.recordInbound(ctx, res.Org.ID, nil, conversations.SenderStaff, msg)
	r.touchOrg(ctx, res.Org.ID, msg.Timestamp)

	reply, handlerErr := r.invokeOnboardingContinue(ctx, res, msg.Content)
	result.Status = StatusOK
	if handlerErr != nil {
		r.logger.Error("onboarding continue failed",
			slog.String("org_id", res.Org.ID.String()),
			slog.String("error", handlerErr.Error()))
		result.Status = StatusError
		reply = r.fallbackReply
	}
	result.Reply = reply
	if r.send(ctx, msg.TenantChannelID, phone, reply) {
		r.recordOutbound(ctx, res.Org.ID, nil, reply)
	} else {
		result.Status = StatusError
	}
	return result, nil
}

func (r *Router) invokeOnboardingContinue(ctx context.Context, res *Resolution, content string) (reply string, err error) {
	defer recoverHandler(r.logger, &err)
	return r.onboarding.Continue(ctx, res.Org, res.Staff, content)
}

func (r *Router) routeStaff(ctx context.Context, msg InboundMessage, phone string, res *Resolution) (RoutingResult, error) {
	ctx = tenancy.WithOrgID(ctx, res.Org.ID)
	result := RoutingResult{Decision: DecisionStaff, OrgID: res.Org.ID, Role: RoleStaff}
	r.recordInbound(ctx, res.Org.ID, nil, conversations.SenderStaff, msg)
	r.touchOrg(ctx, res.Org.ID, msg.Timestamp)

	reply, handlerErr := r.invokeStaff(ctx, res, msg.Content)
	result.Status = StatusOK
	if handlerErr != nil {
		r.logger.Error("staff handler failed",
			slog.String("org_id", res.Org.ID.String()),
			slog.String("staff_id", res.Staff.ID.String()),
			slog.String("error", handlerErr.Error()))
		result.Status = StatusError
		reply = r.fallbackReply
	}
	result.Reply = reply
	if r.send(ctx, msg.TenantChannelID, phone, reply) {
		r.recordOutbound(ctx, res.Org.ID, nil, reply)
	} else {
		result.Status = StatusError
	}
	return result, nil
}

func (r *Router) invokeStaff(ctx context.Context, res *Resolution, content string) (reply string, err error) {
	defer recoverHandler(r.logger, &err)
	return r.staff.HandleStaff(ctx, res.Org, res.Staff, content)
}

func (r *Router) routeCustomer(ctx context.Context, msg InboundMessage, phone string, res *Resolution) (RoutingResult, error) {
	ctx = tenancy.WithOrgID(ctx, res.Org.ID)
	result := RoutingResult{Decision: DecisionCustomer, OrgID: res.Org.ID, Role: RoleCustomer}

	conv, err := r.store.GetOrCreateActive(ctx, res.Org.ID, res.Customer.ID)
	if err != nil {
		r.logger.Error("conversation lookup failed",
			slog.String("org_id", res.Org.ID.String()),
			slog.String("error", err.Error()))
		result.Status = StatusError
		result.Reply = r.fallbackReply
		r.send(ctx, msg.TenantChannelID, phone, r.fallbackReply)
		return result, err
	}
	r.recordInbound(ctx, res.Org.ID, &conv.ID, conversations.SenderCustomer, msg)
	r.touchOrg(ctx, res.Org.ID, msg.Timestamp)

	reply, handlerErr := r.invokeCustomer(ctx, res, conv, msg.Content)
	result.Status = StatusOK
	if handlerErr != nil {
		r.logger.Error("customer handler failed",
			slog.String("org_id", res.Org.ID.String()),
			slog.String("customer_id", res.Customer.ID.String()),
			slog.String("error", handlerErr.Error()))
		result.Status = StatusError
		reply = r.fallbackReply
	}
	result.Reply = reply
	if r.send(ctx, msg.TenantChannelID, phone, reply) {
		r.recordOutbound(ctx, res.Org.ID, &conv.ID, reply)
	} else {
		result.Status = StatusError
	}
	return result, nil
}

func (r *Router) invokeCustomer(ctx context.Context, res *Resolution, conv *conversations.Conversation, content string) (reply string, err error) {
	defer recoverHandler(r.logger, &err)
	return r.customer.HandleCustomer(ctx, res.Org, res.Customer, conv, content)
}

func (r *Router) routeNotReady(ctx context.Context, msg InboundMessage, phone string, res *Resolution) (RoutingResult, error) {
	ctx = tenancy.WithOrgID(ctx, res.Org.ID)
	result := RoutingResult{Decision: DecisionNotReady, OrgID: res.Org.ID, Role: RoleNone, Status: StatusOK}
	r.recordInbound(ctx, res.Org.ID, nil, conversations.SenderCustomer, msg)
	result.Reply = r.notReadyReply
	if r.send(ctx, msg.TenantChannelID, phone, r.notReadyReply) {
		r.recordOutbound(ctx, res.Org.ID, nil, r.notReadyReply)
	} else {
		result.Status = StatusError
	}
	return result, nil
}

// recordInbound stores the received message. The unique index on the
// provider id makes a duplicate here harmless; anything else is logged
// and routing continues, a reply matters more than the audit row.
func (r *Router) recordInbound(ctx context.Context, orgID uuid.UUID, convID *uuid.UUID, sender conversations.SenderType, msg InboundMessage) {
	_, err := r.store.RecordInbound(ctx, conversations.RecordParams{
		ConversationID: convID,
		OrgID:          orgID,
		SenderType:     sender,
		Content:        msg.Content,
		WAMessageID:    msg.MessageID,
	})
	if err != nil && !errors.Is(err, conversations.ErrDuplicateMessage) {
		r.logger.Error("record inbound failed",
			slog.String("org_id", orgID.String()),
			slog.String("error", err.Error()))
	}
}

func (r *Router) recordOutbound(ctx context.Context, orgID uuid.UUID, convID *uuid.UUID, content string) {
	_, err := r.store.RecordOutbound(ctx, conversations.RecordParams{
		ConversationID: convID,
		OrgID:          orgID,
		SenderType:     conversations.SenderAssistant,
		Content:        content,
	})
	if err != nil {
		r.logger.Error("record outbound failed",
			slog.String("org_id", orgID.String()),
			slog.String("error", err.Error()))
	}
}

func (r *Router) touchOrg(ctx context.Context, orgID uuid.UUID, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := r.orgs.TouchLastMessage(ctx, orgID, at); err != nil {
		r.logger.Error("touch last message failed",
			slog.String("org_id", orgID.String()),
			slog.String("error", err.Error()))
	}
}

// send delivers the reply and reports whether it was accepted.
func (r *Router) send(ctx context.Context, channelID, to, body string) bool {
	if _, err := r.sender.SendText(ctx, channelID, to, body); err != nil {
		r.logger.Error("outbound send failed",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		r.metrics.ObserveOutbound("failed")
		return false
	}
	r.metrics.ObserveOutbound("sent")
	return true
}

func recoverHandler(logger *slog.Logger, err *error) {
	if rec := recover(); rec != nil {
		logger.Error("handler panic", slog.Any("panic", rec))
		*err = fmt.Errorf("routing: handler panic: %v", rec)
	}
}
