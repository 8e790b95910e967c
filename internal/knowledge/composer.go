package knowledge

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const notSpecified = "no especificado"

var esPrinter = message.NewPrinter(language.Spanish)

// LeadState is the qualification snapshot rendered for the model.
type LeadState struct {
	Name                      string
	Status                    string
	Budget                    string
	ExpectedPurchaseTimeframe string
	Type                      string
}

// Compose renders grounding and lead state into one context block. Section
// order is fixed: documents, inventory, lead state. Empty corpora are left
// out; the lead state is always present with unset fields spelled out.
func Compose(g Grounding, lead LeadState) string {
	var b strings.Builder

	if len(g.Documents) > 0 {
		b.WriteString("## Información del concesionario\n")
		for _, d := range g.Documents {
			fmt.Fprintf(&b, "### %s", strings.TrimSpace(d.Title))
			if d.Category != "" {
				fmt.Fprintf(&b, " [%s]", d.Category)
			}
			b.WriteString("\n")
			b.WriteString(strings.TrimSpace(d.Content))
			b.WriteString("\n\n")
		}
	}

	if len(g.Inventory) > 0 {
		b.WriteString("## Vehículos disponibles\n")
		for _, it := range g.Inventory {
			b.WriteString("- ")
			b.WriteString(inventoryLine(it.Item))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Estado actual del cliente\n")
	writeField(&b, "Nombre", lead.Name)
	writeField(&b, "Estado", lead.Status)
	writeField(&b, "Presupuesto", lead.Budget)
	writeField(&b, "Plazo de compra", lead.ExpectedPurchaseTimeframe)
	writeField(&b, "Tipo de vehículo", lead.Type)

	return strings.TrimRight(b.String(), "\n")
}

func inventoryLine(it Item) string {
	parts := []string{it.Name()}
	if it.BodyType != "" {
		parts = append(parts, it.BodyType)
	}
	if it.PriceCents > 0 {
		parts = append(parts, formatEuros(it.PriceCents))
	}
	if it.MileageKm > 0 {
		parts = append(parts, formatKm(it.MileageKm))
	}
	parts = append(parts, nonEmpty(it.FuelType, it.Transmission, it.Color)...)
	return strings.Join(parts, " | ")
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = notSpecified
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.TrimSpace(value))
}

// formatEuros renders whole euros with Spanish grouping, e.g. "15.000 €".
func formatEuros(cents int64) string {
	return esPrinter.Sprintf("%d €", (cents+50)/100)
}

func formatKm(km int) string {
	return esPrinter.Sprintf("%d km", km)
}
