// Package knowledge retrieves grounding for a conversation turn from the
// dealership's documents and unsold inventory, and renders it into the
// context block handed to the generation model.
package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTopK is how many rows each corpus contributes per turn.
const DefaultTopK = 3

// Category is the closed set of knowledge document kinds.
type Category string

const (
	CategoryGeneral      Category = "general"
	CategoryFinanciacion Category = "financiacion"
	CategoryGarantia     Category = "garantia"
	CategoryTaller       Category = "taller"
	CategoryEmpresa      Category = "empresa"
	CategoryPromociones  Category = "promociones"
)

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryGeneral, CategoryFinanciacion, CategoryGarantia, CategoryTaller, CategoryEmpresa, CategoryPromociones:
		return c, true
	}
	return "", false
}

// Document is a tenant-owned piece of dealership knowledge.
type Document struct {
	ID         string
	TenantID   string
	Title      string
	Category   Category
	Content    string
	SourceFile string
	Embedding  []float32
	Indexed    bool
	UpdatedAt  time.Time
}

// Item is one vehicle in stock.
type Item struct {
	ID           string
	TenantID     string
	Make         string
	Model        string
	Trim         string
	Year         int
	PriceCents   int64
	MileageKm    int
	FuelType     string
	Transmission string
	BodyType     string
	Color        string
	Sold         bool
	Embedding    []float32
	Indexed      bool
	UpdatedAt    time.Time
}

// Name is the human label of the vehicle, e.g. "Toyota RAV4 220H Advance (2021)".
func (i Item) Name() string {
	name := strings.Join(nonEmpty(i.Make, i.Model, i.Trim), " ")
	if i.Year > 0 {
		name = fmt.Sprintf("%s (%d)", name, i.Year)
	}
	return name
}

// Description is the text embedded for similarity search. It lists every
// present attribute so queries like "SUV híbrido automático" land on it.
func (i Item) Description() string {
	parts := []string{i.Name()}
	parts = append(parts, nonEmpty(i.BodyType, i.FuelType, i.Transmission, i.Color)...)
	if i.PriceCents > 0 {
		parts = append(parts, formatEuros(i.PriceCents))
	}
	if i.MileageKm > 0 {
		parts = append(parts, formatKm(i.MileageKm))
	}
	return strings.Join(parts, ", ")
}

// ScoredDocument pairs a document with its cosine similarity to the query.
type ScoredDocument struct {
	Document
	Similarity float64
}

// ScoredItem pairs an item with its cosine similarity to the query.
type ScoredItem struct {
	Item
	Similarity float64
}

// Grounding is the retrieval result for one turn.
type Grounding struct {
	Documents []ScoredDocument
	Inventory []ScoredItem
}

// Empty reports whether nothing was retrieved.
func (g Grounding) Empty() bool { return len(g.Documents) == 0 && len(g.Inventory) == 0 }

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
