package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/diegovillafuerte/parlo/internal/catalog"
	"github.com/diegovillafuerte/parlo/internal/conversations"
	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/staff"
)

type scriptedEngine struct {
	reply    Reply
	phrased  string
	prompts  []Prompt
	executed []Action
}

func (s *scriptedEngine) Respond(_ context.Context, p Prompt) (Reply, error) {
	s.prompts = append(s.prompts, p)
	return s.reply, nil
}

func (s *scriptedEngine) PhraseResult(_ context.Context, _ Prompt, action Action, _ ActionResult) (string, error) {
	s.executed = append(s.executed, action)
	return s.phrased, nil
}

type fakeServices struct {
	services []catalog.ServiceType
}

func (f *fakeServices) ListActiveServiceTypes(_ context.Context, _ uuid.UUID) ([]catalog.ServiceType, error) {
	return f.services, nil
}

type fakeMessages struct {
	stored []conversations.Message
}

func (f *fakeMessages) RecentMessages(_ context.Context, _ uuid.UUID, _ int) ([]conversations.Message, error) {
	return f.stored, nil
}

func testConversation(orgID uuid.UUID) *conversations.Conversation {
	return &conversations.Conversation{ID: uuid.New(), OrgID: orgID, Status: conversations.StatusActive}
}

func TestCustomerAssistantPlainReply(t *testing.T) {
	org := execOrg()
	engine := &scriptedEngine{reply: Reply{Text: "¡Hola María!"}}
	a := NewCustomerAssistant(engine, newTestExecutor(&fakeAppointments{}, nil, &fakeExecCatalog{}, nil), nil, &fakeMessages{}, &fakeServices{}, nil)

	text, err := a.HandleCustomer(context.Background(), org, &customers.Customer{ID: uuid.New(), Name: "María"}, testConversation(org.ID), "hola")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if text != "¡Hola María!" {
		t.Fatalf("unexpected reply: %q", text)
	}
	if len(engine.executed) != 0 {
		t.Fatal("no action should be executed for a plain reply")
	}
}

func TestCustomerAssistantActionRoundTrip(t *testing.T) {
	org := execOrg()
	svc := catalog.ServiceType{ID: uuid.New(), Name: "Corte", DurationMinutes: 30, IsActive: true}
	engine := &scriptedEngine{
		reply:   Reply{Action: &Action{Kind: ActionCheckAvailability, ServiceTypeID: svc.ID}},
		phrased: "Tenemos lugar el lunes a las 10.",
	}
	exec := newTestExecutor(&fakeAppointments{}, &fakeSlotFinder{}, &fakeExecCatalog{service: &svc}, nil)
	a := NewCustomerAssistant(engine, exec, nil, &fakeMessages{}, &fakeServices{services: []catalog.ServiceType{svc}}, nil)

	text, err := a.HandleCustomer(context.Background(), org, &customers.Customer{ID: uuid.New()}, testConversation(org.ID), "¿tienen lugar?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if text != "Tenemos lugar el lunes a las 10." {
		t.Fatalf("reply should come from PhraseResult, got %q", text)
	}
	if len(engine.executed) != 1 || engine.executed[0].Kind != ActionCheckAvailability {
		t.Fatalf("expected one executed action, got %+v", engine.executed)
	}
	if len(engine.prompts) == 0 || len(engine.prompts[0].Services) != 1 {
		t.Fatal("the prompt should carry the service catalog")
	}
}

func TestCustomerAssistantRebuildsHistoryFromStore(t *testing.T) {
	org := execOrg()
	engine := &scriptedEngine{reply: Reply{Text: "ok"}}
	msgs := &fakeMessages{stored: []conversations.Message{
		{Direction: conversations.DirectionInbound, Content: "hola", CreatedAt: time.Now().Add(-time.Minute)},
		{Direction: conversations.DirectionOutbound, Content: "¡Hola!", CreatedAt: time.Now()},
	}}
	a := NewCustomerAssistant(engine, newTestExecutor(&fakeAppointments{}, nil, &fakeExecCatalog{}, nil), nil, msgs, &fakeServices{}, nil)

	if _, err := a.HandleCustomer(context.Background(), org, &customers.Customer{ID: uuid.New()}, testConversation(org.ID), "sigo aquí"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	history := engine.prompts[0].History
	if len(history) != 2 {
		t.Fatalf("history should be rebuilt from stored messages, got %d", len(history))
	}
	if history[0].Role != ChatRoleUser || history[1].Role != ChatRoleAssistant {
		t.Fatalf("directions should map to chat roles, got %+v", history)
	}
}

func TestStaffAssistantPermissionGate(t *testing.T) {
	org := execOrg()
	engine := &scriptedEngine{
		reply:   Reply{Action: &Action{Kind: ActionBook, ServiceTypeID: uuid.New(), Start: time.Now().Add(time.Hour)}},
		phrased: "Cita agendada.",
	}
	exec := newTestExecutor(&fakeAppointments{}, nil, &fakeExecCatalog{service: &catalog.ServiceType{ID: uuid.New(), DurationMinutes: 30}, location: &catalog.Location{ID: uuid.New()}}, nil)
	a := NewStaffAssistant(engine, exec, &fakeServices{}, nil)

	viewer := &staff.Member{ID: uuid.New(), Permissions: staff.DefaultPermissions(staff.PermissionViewer)}
	text, err := a.HandleStaff(context.Background(), org, viewer, "agenda a Juan mañana")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(engine.executed) != 0 {
		t.Fatal("a viewer must not book")
	}
	if text == "Cita agendada." {
		t.Fatal("expected a permission denial, not the booking reply")
	}

	booker := &staff.Member{ID: uuid.New(), Permissions: staff.DefaultPermissions(staff.PermissionStaff)}
	text, err = a.HandleStaff(context.Background(), org, booker, "agenda a Juan mañana")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if text != "Cita agendada." || len(engine.executed) != 1 {
		t.Fatalf("staff level should book, got %q", text)
	}
}

func TestStaticEngineAvailabilityKeyword(t *testing.T) {
	org := execOrg()
	svc := catalog.ServiceType{ID: uuid.New(), Name: "Corte"}
	e := NewStaticEngine()

	reply, err := e.Respond(context.Background(), Prompt{Org: org, Services: []catalog.ServiceType{svc}, Content: "¿Qué disponibilidad tienen?"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Action == nil || reply.Action.Kind != ActionCheckAvailability {
		t.Fatalf("expected availability action, got %+v", reply)
	}

	reply, err = e.Respond(context.Background(), Prompt{Org: org, Content: "hola"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text == "" || reply.Action != nil {
		t.Fatalf("greeting should be plain text, got %+v", reply)
	}
}

func TestStaticEnginePhrasesSlots(t *testing.T) {
	e := NewStaticEngine()
	text, err := e.PhraseResult(context.Background(), Prompt{}, Action{Kind: ActionCheckAvailability}, ActionResult{Kind: ResultSlots})
	if err != nil {
		t.Fatalf("phrase: %v", err)
	}
	if text != "No hay horarios disponibles en esas fechas." {
		t.Fatalf("unexpected empty-slots phrasing: %q", text)
	}

	text, err = e.PhraseResult(context.Background(), Prompt{}, Action{Kind: ActionBook}, ActionResult{Kind: ResultNeedsStaff})
	if err != nil {
		t.Fatalf("phrase: %v", err)
	}
	if !strings.Contains(text, "quién") {
		t.Fatalf("needs-staff phrasing should ask for a person, got %q", text)
	}
}
