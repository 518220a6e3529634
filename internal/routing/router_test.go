package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/conversations"
	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/staff"
	"github.com/diegovillafuerte/parlo/internal/whatsapp"
)

type fakeIdentity struct {
	res *Resolution
	err error
}

func (f *fakeIdentity) Resolve(_ context.Context, _, _, _ string) (*Resolution, error) {
	return f.res, f.err
}

type fakeStore struct {
	duplicate bool
	inbound   []conversations.RecordParams
	outbound  []conversations.RecordParams
	conv      *conversations.Conversation
}

func (f *fakeStore) BeginProcessing(_ context.Context, _ string) (bool, error) {
	return !f.duplicate, nil
}

func (f *fakeStore) GetOrCreateActive(_ context.Context, orgID, customerID uuid.UUID) (*conversations.Conversation, error) {
	if f.conv == nil {
		f.conv = &conversations.Conversation{ID: uuid.New(), OrgID: orgID, CustomerID: customerID, Status: conversations.StatusActive}
	}
	return f.conv, nil
}

func (f *fakeStore) RecordInbound(_ context.Context, p conversations.RecordParams) (*conversations.Message, error) {
	f.inbound = append(f.inbound, p)
	return &conversations.Message{ID: uuid.New()}, nil
}

func (f *fakeStore) RecordOutbound(_ context.Context, p conversations.RecordParams) (*conversations.Message, error) {
	f.outbound = append(f.outbound, p)
	return &conversations.Message{ID: uuid.New()}, nil
}

type fakeOrgs struct{ touched int }

func (f *fakeOrgs) TouchLastMessage(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.touched++
	return nil
}

type fakeOnboarding struct {
	org      *organizations.Organization
	started  int
	resumed  int
	startErr error
}

func (f *fakeOnboarding) Start(_ context.Context, _, _, _ string) (*organizations.Organization, string, error) {
	f.started++
	if f.startErr != nil {
		return nil, "", f.startErr
	}
	return f.org, "¡Hola! Vamos a configurar tu negocio.", nil
}

func (f *fakeOnboarding) Continue(_ context.Context, _ *organizations.Organization, _ *staff.Member, _ string) (string, error) {
	f.resumed++
	return "¿Cómo se llama tu negocio?", nil
}

type fakeStaffHandler struct {
	calls int
	reply string
	err   error
	panic bool
}

func (f *fakeStaffHandler) HandleStaff(_ context.Context, _ *organizations.Organization, _ *staff.Member, _ string) (string, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.reply, f.err
}

type fakeCustomerHandler struct {
	calls int
	conv  *conversations.Conversation
	reply string
}

func (f *fakeCustomerHandler) HandleCustomer(_ context.Context, _ *organizations.Organization, _ *customers.Customer, conv *conversations.Conversation, _ string) (string, error) {
	f.calls++
	f.conv = conv
	return f.reply, nil
}

func activeOrg() *organizations.Organization {
	return &organizations.Organization{ID: uuid.New(), Name: "Estética Luna", Status: organizations.StatusActive}
}

func inbound() InboundMessage {
	return InboundMessage{
		TenantChannelID: "chan-1",
		SenderPhone:     "5215587654321",
		SenderName:      "María",
		MessageID:       "wamid.1",
		Content:         "hola",
		Timestamp:       time.Now(),
	}
}

func newTestRouter(id *fakeIdentity, store *fakeStore, ob *fakeOnboarding, sh *fakeStaffHandler, ch *fakeCustomerHandler, sender whatsapp.Sender) *Router {
	if ob == nil {
		ob = &fakeOnboarding{}
	}
	if sh == nil {
		sh = &fakeStaffHandler{reply: "listo"}
	}
	if ch == nil {
		ch = &fakeCustomerHandler{reply: "claro"}
	}
	return NewRouter(Config{
		Identity:           id,
		Store:              store,
		Orgs:               &fakeOrgs{},
		Onboarding:         ob,
		Staff:              sh,
		Customer:           ch,
		Sender:             sender,
		DefaultCountryCode: "52",
	})
}

func TestRouteDuplicateShortCircuits(t *testing.T) {
	store := &fakeStore{duplicate: true}
	sender := whatsapp.NewMockSender()
	sh := &fakeStaffHandler{reply: "listo"}
	r := newTestRouter(&fakeIdentity{}, store, nil, sh, nil, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionDuplicate || result.Status != StatusDuplicate {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sh.calls != 0 {
		t.Fatal("no handler should run for a duplicate")
	}
	if len(sender.Sent()) != 0 {
		t.Fatal("no outbound message for a duplicate")
	}
	if len(store.inbound) != 0 {
		t.Fatal("duplicate should not store a second message row")
	}
}

func TestRouteUnknownChannelStartsOnboarding(t *testing.T) {
	org := &organizations.Organization{ID: uuid.New(), Status: organizations.StatusOnboarding}
	ob := &fakeOnboarding{org: org}
	store := &fakeStore{}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Role: RoleNone}}, store, ob, nil, nil, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionOnboardingStart || result.Status != StatusOK {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.OrgID != org.ID {
		t.Fatal("result should expose the new org id")
	}
	if ob.started != 1 {
		t.Fatalf("onboarding should start once, got %d", ob.started)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(sender.Sent()))
	}
	if len(store.inbound) != 1 || len(store.outbound) != 1 {
		t.Fatalf("expected inbound and outbound recorded, got %d/%d", len(store.inbound), len(store.outbound))
	}
}

func TestRouteOnboardingOwnerContinues(t *testing.T) {
	org := &organizations.Organization{ID: uuid.New(), Status: organizations.StatusOnboarding}
	owner := &staff.Member{ID: uuid.New(), OrgID: org.ID, Role: staff.RoleOwner}
	ob := &fakeOnboarding{org: org}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleStaff, Staff: owner}}, &fakeStore{}, ob, nil, nil, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionOnboardingContinue {
		t.Fatalf("unexpected decision: %s", result.Decision)
	}
	if ob.resumed != 1 || ob.started != 0 {
		t.Fatalf("expected continue only, got started=%d resumed=%d", ob.started, ob.resumed)
	}
}

func TestRouteActiveStaff(t *testing.T) {
	org := activeOrg()
	member := &staff.Member{ID: uuid.New(), OrgID: org.ID, Role: staff.RoleEmployee, PermissionLevel: staff.PermissionStaff}
	sh := &fakeStaffHandler{reply: "Tienes 3 citas hoy."}
	ch := &fakeCustomerHandler{reply: "claro"}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleStaff, Staff: member}}, &fakeStore{}, nil, sh, ch, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionStaff || result.Role != RoleStaff {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sh.calls != 1 || ch.calls != 0 {
		t.Fatalf("staff handler should run, got staff=%d customer=%d", sh.calls, ch.calls)
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Text != "Tienes 3 citas hoy." {
		t.Fatalf("unexpected sends: %+v", sent)
	}
}

func TestRouteActiveCustomerGetsConversation(t *testing.T) {
	org := activeOrg()
	customer := &customers.Customer{ID: uuid.New(), OrgID: org.ID, PhoneNumber: "+5215587654321"}
	ch := &fakeCustomerHandler{reply: "Tenemos lugar mañana a las 10."}
	store := &fakeStore{}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleCustomer, Customer: customer}}, store, nil, nil, ch, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionCustomer || result.Role != RoleCustomer {
		t.Fatalf("unexpected result: %+v", result)
	}
	if ch.conv == nil {
		t.Fatal("customer handler should receive the active conversation")
	}
	if len(store.inbound) != 1 || store.inbound[0].ConversationID == nil {
		t.Fatal("inbound message should attach to the conversation")
	}
	if len(store.outbound) != 1 || store.outbound[0].ConversationID == nil {
		t.Fatal("outbound message should attach to the conversation")
	}
}

func TestRouteHandlerErrorSendsFallback(t *testing.T) {
	org := activeOrg()
	member := &staff.Member{ID: uuid.New(), OrgID: org.ID}
	sh := &fakeStaffHandler{err: errors.New("model unavailable")}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleStaff, Staff: member}}, &fakeStore{}, nil, sh, nil, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route should not propagate handler errors: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("fallback must still be the one send, got %d", len(sent))
	}
	if sent[0].Text == "" || sent[0].Text == sh.reply {
		t.Fatalf("expected fallback text, got %q", sent[0].Text)
	}
}

func TestRouteHandlerPanicIsRecovered(t *testing.T) {
	org := activeOrg()
	member := &staff.Member{ID: uuid.New(), OrgID: org.ID}
	sh := &fakeStaffHandler{panic: true}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleStaff, Staff: member}}, &fakeStore{}, nil, sh, nil, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("panic must not escape the router: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error status after panic, got %s", result.Status)
	}
	if len(sender.Sent()) != 1 {
		t.Fatal("fallback should still be sent after a panic")
	}
}

func TestRouteOnboardingTenantStranger(t *testing.T) {
	org := &organizations.Organization{ID: uuid.New(), Status: organizations.StatusOnboarding}
	sh := &fakeStaffHandler{reply: "listo"}
	ch := &fakeCustomerHandler{reply: "claro"}
	sender := whatsapp.NewMockSender()
	r := newTestRouter(&fakeIdentity{res: &Resolution{Org: org, Role: RoleNone}}, &fakeStore{}, nil, sh, ch, sender)

	result, err := r.Route(context.Background(), inbound())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Decision != DecisionNotReady {
		t.Fatalf("stranger on an onboarding tenant should get the not-ready path, got %s", result.Decision)
	}
	if sh.calls != 0 || ch.calls != 0 {
		t.Fatal("no handler should run for a tenant that is not ready")
	}
	if len(sender.Sent()) != 1 {
		t.Fatal("the sender should still get an acknowledgment")
	}
}
