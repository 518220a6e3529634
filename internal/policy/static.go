package policy

import (
	"context"
	"fmt"
	"strings"
)

// StaticEngine is a deterministic, keyword-driven engine used in local
// development and tests when no model API key is configured. It
// understands just enough Spanish to exercise the action path.
type StaticEngine struct{}

func NewStaticEngine() *StaticEngine {
	return &StaticEngine{}
}

func (e *StaticEngine) Respond(_ context.Context, p Prompt) (Reply, error) {
	content := strings.ToLower(p.Content)
	switch {
	case strings.Contains(content, "disponib") || strings.Contains(content, "horario"):
		if len(p.Services) > 0 {
			return Reply{Action: &Action{Kind: ActionCheckAvailability, ServiceTypeID: p.Services[0].ID}}, nil
		}
	case strings.Contains(content, "mis citas") || strings.Contains(content, "qué citas"):
		return Reply{Action: &Action{Kind: ActionListAppointments}}, nil
	}
	greeting := p.Org.Settings.Greeting
	if greeting == "" {
		greeting = fmt.Sprintf("¡Hola! Soy el asistente de %s. Puedo mostrarte horarios disponibles, agendar o cancelar citas.", p.Org.Name)
	}
	return Reply{Text: greeting}, nil
}

func (e *StaticEngine) PhraseResult(_ context.Context, _ Prompt, _ Action, result ActionResult) (string, error) {
	switch result.Kind {
	case ResultSlots:
		if len(result.Slots) == 0 {
			return "No hay horarios disponibles en esas fechas.", nil
		}
		var b strings.Builder
		b.WriteString("Horarios disponibles:\n")
		max := len(result.Slots)
		if max > 5 {
			max = 5
		}
		for _, s := range result.Slots[:max] {
			fmt.Fprintf(&b, "- %s con %s\n", s.Start.Format("Mon 02 Jan 15:04"), s.StaffName)
		}
		return b.String(), nil
	case ResultBooked:
		return fmt.Sprintf("Tu cita quedó agendada para el %s.", result.Appointment.ScheduledStart.Format("02 Jan 15:04")), nil
	case ResultConflicts, ResultSlotTaken:
		return "Ese horario ya no está disponible. ¿Te muestro otras opciones?", nil
	case ResultCancelled:
		return "Tu cita fue cancelada. ¡Esperamos verte pronto!", nil
	case ResultAppointments:
		if len(result.Appointments) == 0 {
			return "No tienes citas próximas.", nil
		}
		var b strings.Builder
		b.WriteString("Tus próximas citas:\n")
		for _, a := range result.Appointments {
			fmt.Fprintf(&b, "- %s\n", a.ScheduledStart.Format("Mon 02 Jan 15:04"))
		}
		return b.String(), nil
	case ResultNeedsStaff:
		return "¿Con quién del equipo te gustaría la cita? Dime el nombre y la agendo.", nil
	case ResultNotFound:
		return "No encontré esa cita o servicio.", nil
	default:
		return "Listo.", nil
	}
}
