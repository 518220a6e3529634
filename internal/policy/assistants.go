package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/conversations"
	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

type conversationReader interface {
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversations.Message, error)
}

type serviceLister interface {
	ListActiveServiceTypes(ctx context.Context, orgID uuid.UUID) ([]catalog.ServiceType, error)
}

// CustomerAssistant answers customer messages: free conversation via
// the engine, with structured actions executed against the scheduling
// core and their results phrased back by the engine.
type CustomerAssistant struct {
	engine   Engine
	executor *Executor
	history  *HistoryCache
	messages conversationReader
	services serviceLister
	logger   *slog.Logger
}

func NewCustomerAssistant(engine Engine, executor *Executor, history *HistoryCache, messages conversationReader, services serviceLister, logger *slog.Logger) *CustomerAssistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerAssistant{
		engine:   engine,
		executor: executor,
		history:  history,
		messages: messages,
		services: services,
		logger:   logger,
	}
}

func (a *CustomerAssistant) HandleCustomer(ctx context.Context, org *organizations.Organization, customer *customers.Customer, conv *conversations.Conversation, content string) (string, error) {
	history := a.loadHistory(ctx, conv.ID)
	services, err := a.services.ListActiveServiceTypes(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("policy: list services: %w", err)
	}

	prompt := Prompt{
		Org:        org,
		SenderRole: "customer",
		SenderName: customer.Name,
		Services:   services,
		History:    history,
		Content:    content,
	}
	reply, err := a.engine.Respond(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("policy: respond: %w", err)
	}

	text := reply.Text
	if reply.Action != nil {
		result, err := a.executor.Execute(ctx, org, customer.ID, *reply.Action)
		if err != nil {
			return "", fmt.Errorf("policy: execute %s: %w", reply.Action.Kind, err)
		}
		text, err = a.engine.PhraseResult(ctx, prompt, *reply.Action, result)
		if err != nil {
			return "", fmt.Errorf("policy: phrase result: %w", err)
		}
	}

	a.saveHistory(ctx, conv.ID, append(history,
		ChatMessage{Role: ChatRoleUser, Content: content},
		ChatMessage{Role: ChatRoleAssistant, Content: text},
	))
	return text, nil
}

// loadHistory prefers the redis cache and falls back to the stored
// messages. Either source failing is logged, not fatal.
func (a *CustomerAssistant) loadHistory(ctx context.Context, convID uuid.UUID) []ChatMessage {
	if a.history != nil {
		cached, err := a.history.Load(ctx, convID.String())
		if err != nil {
			a.logger.Warn("history cache load failed", slog.String("error", err.Error()))
		} else if cached != nil {
			return cached
		}
	}
	if a.messages == nil {
		return nil
	}
	stored, err := a.messages.RecentMessages(ctx, convID, historyMax)
	if err != nil {
		a.logger.Warn("history rebuild failed", slog.String("error", err.Error()))
		return nil
	}
	history := make([]ChatMessage, 0, len(stored))
	for _, m := range stored {
		role := ChatRoleUser
		if m.Direction == conversations.DirectionOutbound {
			role = ChatRoleAssistant
		}
		history = append(history, ChatMessage{Role: role, Content: m.Content})
	}
	return history
}

func (a *CustomerAssistant) saveHistory(ctx context.Context, convID uuid.UUID, history []ChatMessage) {
	if a.history == nil {
		return
	}
	if err := a.history.Save(ctx, convID.String(), history); err != nil {
		a.logger.Warn("history cache save failed", slog.String("error", err.Error()))
	}
}

// StaffAssistant answers staff messages. Actions are gated by the
// member's permission set before execution.
type StaffAssistant struct {
	engine   Engine
	executor *Executor
	services serviceLister
	logger   *slog.Logger
}

func NewStaffAssistant(engine Engine, executor *Executor, services serviceLister, logger *slog.Logger) *StaffAssistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaffAssistant{engine: engine, executor: executor, services: services, logger: logger}
}

func (a *StaffAssistant) HandleStaff(ctx context.Context, org *organizations.Organization, member *staff.Member, content string) (string, error) {
	services, err := a.services.ListActiveServiceTypes(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("policy: list services: %w", err)
	}
	prompt := Prompt{
		Org:        org,
		SenderRole: "staff",
		SenderName: member.Name,
		Services:   services,
		Content:    content,
	}
	reply, err := a.engine.Respond(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("policy: respond: %w", err)
	}
	if reply.Action == nil {
		return reply.Text, nil
	}
	if !allowed(member.Permissions, reply.Action.Kind) {
		return "No tienes permisos para esa operación. Pide a la persona dueña del negocio que te los otorgue.", nil
	}
	// Staff act on the org's calendar, not on their own bookings.
	result, err := a.executor.Execute(ctx, org, uuid.Nil, *reply.Action)
	if err != nil {
		return "", fmt.Errorf("policy: execute %s: %w", reply.Action.Kind, err)
	}
	text, err := a.engine.PhraseResult(ctx, prompt, *reply.Action, result)
	if err != nil {
		return "", fmt.Errorf("policy: phrase result: %w", err)
	}
	return text, nil
}

func allowed(p staff.Permissions, kind ActionKind) bool {
	switch kind {
	case ActionCheckAvailability, ActionListAppointments:
		return p.CanViewSchedule
	case ActionBook:
		return p.CanBook
	case ActionCancel:
		return p.CanCancel
	default:
		return false
	}
}
