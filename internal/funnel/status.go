// Package funnel holds the dealership sales-funnel vocabulary and the
// transition rules applied after every bot turn.
package funnel

import "strings"

// Status is a lead's position in the sales funnel.
type Status string

// Bot-driven progression.
const (
	StatusNuevo      Status = "nuevo"
	StatusContactado Status = "contactado"
	StatusActivo     Status = "activo"
	StatusCalificado Status = "calificado"
	StatusPropuesta  Status = "propuesta"
	StatusEvaluando  Status = "evaluando"
	StatusManager    Status = "manager"
)

// Human-driven stages after hand-off.
const (
	StatusIniciado      Status = "iniciado"
	StatusDocumentacion Status = "documentacion"
	StatusComprador     Status = "comprador"
)

// Terminal failure outcomes.
const (
	StatusDescartado  Status = "descartado"
	StatusSinInteres  Status = "sin_interes"
	StatusInactivo    Status = "inactivo"
	StatusPerdido     Status = "perdido"
	StatusRechazado   Status = "rechazado"
	StatusSinOpciones Status = "sin_opciones"
)

var all = []Status{
	StatusNuevo, StatusContactado, StatusActivo, StatusCalificado,
	StatusPropuesta, StatusEvaluando, StatusManager,
	StatusIniciado, StatusDocumentacion, StatusComprador,
	StatusDescartado, StatusSinInteres, StatusInactivo,
	StatusPerdido, StatusRechazado, StatusSinOpciones,
}

// All returns the closed vocabulary in funnel order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// ParseStatus validates a raw value against the vocabulary. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether s belongs to the vocabulary.
func (s Status) Valid() bool {
	for _, known := range all {
		if s == known {
			return true
		}
	}
	return false
}

// IsFailure reports whether s is a terminal failure outcome.
func (s Status) IsFailure() bool {
	switch s {
	case StatusDescartado, StatusSinInteres, StatusInactivo, StatusPerdido, StatusRechazado, StatusSinOpciones:
		return true
	}
	return false
}

// IsHumanStage reports whether s is owned by the sales team.
func (s Status) IsHumanStage() bool {
	switch s {
	case StatusIniciado, StatusDocumentacion, StatusComprador:
		return true
	}
	return false
}

// IsBotTerminal reports whether the bot must stop replying: the lead was
// handed to a manager, moved into a human stage, or closed out.
func (s Status) IsBotTerminal() bool {
	return s == StatusManager || s.IsHumanStage() || s.IsFailure()
}

func (s Status) String() string { return string(s) }
