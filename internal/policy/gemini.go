package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEngine implements Engine using Google's Gemini API. The model
// is instructed to answer with plain text, or with a single JSON object
// when it wants an operation executed.
type GeminiEngine struct {
	client  *genai.Client
	modelID string
}

// NewGeminiEngine creates a Gemini-backed policy engine.
func NewGeminiEngine(ctx context.Context, apiKey, modelID string) (*GeminiEngine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("policy: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("policy: failed to create gemini client: %w", err)
	}
	return &GeminiEngine{client: client, modelID: modelID}, nil
}

// Respond sends the conversation to Gemini and parses the answer into
// text or an action.
func (e *GeminiEngine) Respond(ctx context.Context, p Prompt) (Reply, error) {
	text, err := e.complete(ctx, p, p.Content)
	if err != nil {
		return Reply{}, err
	}
	if action, ok := parseAction(text); ok {
		return Reply{Action: action}, nil
	}
	return Reply{Text: text}, nil
}

// PhraseResult feeds the executed action's outcome back to Gemini for
// the final user-facing wording.
func (e *GeminiEngine) PhraseResult(ctx context.Context, p Prompt, action Action, result ActionResult) (string, error) {
	payload, err := json.Marshal(struct {
		Action Action       `json:"action"`
		Result ActionResult `json:"result"`
	}{action, result})
	if err != nil {
		return "", fmt.Errorf("policy: marshal result: %w", err)
	}
	followUp := fmt.Sprintf(
		"La operación solicitada se ejecutó. Resultado estructurado: %s\nResponde al usuario en texto plano, breve y amable. No emitas JSON.",
		payload)
	text, err := e.complete(ctx, p, followUp)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (e *GeminiEngine) complete(ctx context.Context, p Prompt, lastMessage string) (string, error) {
	model := e.client.GenerativeModel(e.modelID)
	model.SetTemperature(0.3)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt(p)))

	cs := model.StartChat()
	for _, msg := range p.History {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(lastMessage))
	if err != nil {
		return "", fmt.Errorf("policy: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("policy: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("policy: gemini returned empty content")
	}
	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// Close releases resources held by the Gemini client.
func (e *GeminiEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func systemPrompt(p Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres el asistente de WhatsApp de %s. Zona horaria: %s.\n", p.Org.Name, p.Org.Timezone)
	if p.SenderRole == "staff" {
		b.WriteString("Hablas con un miembro del equipo del negocio.\n")
	} else {
		b.WriteString("Hablas con un cliente que quiere agendar, consultar o cancelar citas.\n")
	}
	if len(p.Services) > 0 {
		b.WriteString("Servicios disponibles:\n")
		for _, s := range p.Services {
			fmt.Fprintf(&b, "- %s (id %s, %d min, $%d.%02d)\n",
				s.Name, s.ID, s.DurationMinutes, s.PriceCents/100, s.PriceCents%100)
		}
	}
	b.WriteString(`
Cuando necesites ejecutar una operación, responde ÚNICAMENTE con un objeto JSON:
  {"action":"check_availability","service_type_id":"...","date_from":"2026-03-02T00:00:00Z"}
  {"action":"book_appointment","service_type_id":"...","staff_id":"...","start":"2026-03-02T10:00:00Z"}
  {"action":"cancel_appointment","appointment_id":"...","reason":"..."}
  {"action":"list_appointments"}
En cualquier otro caso responde en texto plano, en el idioma del usuario.`)
	return b.String()
}

// parseAction attempts to read the model output as an action envelope.
func parseAction(text string) (*Action, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var action Action
	if err := json.Unmarshal([]byte(trimmed), &action); err != nil {
		return nil, false
	}
	switch action.Kind {
	case ActionCheckAvailability, ActionBook, ActionCancel, ActionListAppointments:
		return &action, true
	default:
		return nil, false
	}
}
