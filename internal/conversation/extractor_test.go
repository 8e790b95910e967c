package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
)

func TestExtractUpdateNoDelimiter(t *testing.T) {
	ext := ExtractUpdate("  ¡Hola! ¿Qué coche buscas?  ")
	assert.Equal(t, "¡Hola! ¿Qué coche buscas?", ext.Reply)
	assert.Nil(t, ext.Structured)
}

func TestExtractUpdateFull(t *testing.T) {
	raw := "Perfecto, Lucía. ¿Para cuándo lo necesitas?\nLEAD_UPDATE_JSON: {\"status\": \"calificado\", \"budget\": 25000, \"expectedPurchaseTimeframe\": \"1 mes\", \"type\": \"SUV\", \"name\": \"Lucía\", \"color\": \"rojo\"}"
	ext := ExtractUpdate(raw)

	assert.Equal(t, "Perfecto, Lucía. ¿Para cuándo lo necesitas?", ext.Reply)
	require.NotNil(t, ext.Structured)
	u := ext.Structured
	require.NotNil(t, u.Status)
	assert.Equal(t, funnel.StatusCalificado, *u.Status)
	assert.Equal(t, "25000", *u.Budget)
	assert.Equal(t, "1 mes", *u.ExpectedPurchaseTimeframe)
	assert.Equal(t, "SUV", *u.Type)
	assert.Equal(t, "Lucía", *u.Name)
	assert.False(t, u.Completed)
}

func TestExtractUpdateCodeFence(t *testing.T) {
	raw := "Te paso con un gestor.\n```json\nLEAD_UPDATE_JSON: {\"completed\": true}\n```\nGracias"
	ext := ExtractUpdate(raw)
	assert.Equal(t, "Te paso con un gestor.", ext.Reply)
	require.NotNil(t, ext.Structured)
	assert.True(t, ext.Structured.Completed)
	assert.Nil(t, ext.Structured.Status)
}

func TestExtractUpdateDropsUnknownStatus(t *testing.T) {
	ext := ExtractUpdate("Vale. LEAD_UPDATE_JSON: {\"status\": \"vip\", \"budget\": \"20.000 €\"}")
	require.NotNil(t, ext.Structured)
	assert.Nil(t, ext.Structured.Status)
	assert.Equal(t, "20.000 €", *ext.Structured.Budget)
}

func TestExtractUpdateMalformed(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		reply string
	}{
		{"broken json", "Claro. LEAD_UPDATE_JSON: {\"status\": ", "Claro."},
		{"no object", "Claro. LEAD_UPDATE_JSON: nada", "Claro."},
		{"empty prefix", "LEAD_UPDATE_JSON: [1,2]", "LEAD_UPDATE_JSON: [1,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := ExtractUpdate(tt.raw)
			assert.Equal(t, tt.reply, ext.Reply)
			assert.Nil(t, ext.Structured)
		})
	}
}

func TestExtractUpdateOnlyUnknownKeys(t *testing.T) {
	ext := ExtractUpdate("Genial. LEAD_UPDATE_JSON: {\"color\": \"azul\"}")
	assert.Equal(t, "Genial.", ext.Reply)
	assert.Nil(t, ext.Structured)
}

func TestExtractUpdateStatusCaseInsensitive(t *testing.T) {
	ext := ExtractUpdate("Ok LEAD_UPDATE_JSON: {\"status\": \" Propuesta \", \"completed\": \"true\"}")
	require.NotNil(t, ext.Structured)
	assert.Equal(t, funnel.StatusPropuesta, *ext.Structured.Status)
	assert.True(t, ext.Structured.Completed)
}

func TestTypingDelay(t *testing.T) {
	assert.Equal(t, DefaultTyping.Min, DefaultTyping.Delay("hola"))
	assert.Equal(t, DefaultTyping.PerChar*100, DefaultTyping.Delay(string(make([]rune, 100))))
	assert.Equal(t, DefaultTyping.Max, DefaultTyping.Delay(string(make([]byte, 1000))))
}

func TestSystemPromptListsVocabulary(t *testing.T) {
	p := SystemPrompt()
	assert.Contains(t, p, UpdateDelimiter)
	for _, s := range funnel.All() {
		assert.Contains(t, p, s.String())
	}
}
