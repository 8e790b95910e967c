package knowledge

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Seed is the on-disk format for bulk loading a tenant's corpora.
//
//	tenant_id: demo
//	documents:
//	  - key: horario
//	    title: Horario
//	    category: general
//	    content: Abrimos de lunes a sábado...
//	vehicles:
//	  - key: rav4-2021
//	    make: Toyota
//	    ...
type Seed struct {
	TenantID  string         `yaml:"tenant_id" validate:"required"`
	Documents []SeedDocument `yaml:"documents" validate:"dive"`
	Vehicles  []SeedVehicle  `yaml:"vehicles" validate:"dive"`
}

type SeedDocument struct {
	Key      string `yaml:"key" validate:"required"`
	Title    string `yaml:"title" validate:"required"`
	Category string `yaml:"category" validate:"required,oneof=general financiacion garantia taller empresa promociones"`
	Content  string `yaml:"content" validate:"required"`
}

type SeedVehicle struct {
	Key          string  `yaml:"key" validate:"required"`
	Make         string  `yaml:"make" validate:"required"`
	Model        string  `yaml:"model" validate:"required"`
	Trim         string  `yaml:"trim"`
	Year         int     `yaml:"year" validate:"gte=1950,lte=2100"`
	PriceEuros   float64 `yaml:"price_eur" validate:"gte=0"`
	MileageKm    int     `yaml:"mileage_km" validate:"gte=0"`
	FuelType     string  `yaml:"fuel_type"`
	Transmission string  `yaml:"transmission"`
	BodyType     string  `yaml:"body_type"`
	Color        string  `yaml:"color"`
	Sold         bool    `yaml:"sold"`
}

// ParseSeed decodes and validates a YAML seed.
func ParseSeed(data []byte) (*Seed, error) {
	return ParseSeedForTenant(data, "")
}

// ParseSeedForTenant is ParseSeed with tenant_id replaced when tenantID is
// set, so one catalogue file can be loaded for several dealerships.
func ParseSeedForTenant(data []byte, tenantID string) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("knowledge: decode seed: %w", err)
	}
	if tenantID != "" {
		s.TenantID = tenantID
	}
	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("knowledge: invalid seed: %w", err)
	}
	return &s, nil
}

// SeedID derives a stable row id so re-running a seed updates in place.
func SeedID(tenantID, kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("autolead:"+tenantID+":"+kind+":"+key)).String()
}

// ToDocuments converts the seed into store rows.
func (s *Seed) ToDocuments(sourceFile string) []*Document {
	out := make([]*Document, 0, len(s.Documents))
	for _, d := range s.Documents {
		cat, _ := ParseCategory(d.Category)
		out = append(out, &Document{
			ID:         SeedID(s.TenantID, "doc", d.Key),
			TenantID:   s.TenantID,
			Title:      strings.TrimSpace(d.Title),
			Category:   cat,
			Content:    strings.TrimSpace(d.Content),
			SourceFile: sourceFile,
		})
	}
	return out
}

func (s *Seed) ToItems() []*Item {
	out := make([]*Item, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		out = append(out, &Item{
			ID:           SeedID(s.TenantID, "vehicle", v.Key),
			TenantID:     s.TenantID,
			Make:         v.Make,
			Model:        v.Model,
			Trim:         v.Trim,
			Year:         v.Year,
			PriceCents:   int64(v.PriceEuros*100 + 0.5),
			MileageKm:    v.MileageKm,
			FuelType:     v.FuelType,
			Transmission: v.Transmission,
			BodyType:     v.BodyType,
			Color:        v.Color,
			Sold:         v.Sold,
		})
	}
	return out
}

// SeedResult counts rows written by Load.
type SeedResult struct {
	Documents int
	Items     int
}

// Load writes every row of the seed through the indexer. It stops at the
// first failure and reports how far it got.
func (x *Indexer) Load(ctx context.Context, seed *Seed, sourceFile string) (SeedResult, error) {
	var res SeedResult
	for _, d := range seed.ToDocuments(sourceFile) {
		if err := x.SaveDocument(ctx, d); err != nil {
			return res, fmt.Errorf("knowledge: seed document %s: %w", d.Title, err)
		}
		res.Documents++
	}
	for _, it := range seed.ToItems() {
		if err := x.SaveItem(ctx, it); err != nil {
			return res, fmt.Errorf("knowledge: seed vehicle %s: %w", it.Name(), err)
		}
		res.Items++
	}
	return res, nil
}

// SourceFetcher reads a seed file by name.
type SourceFetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FileFetcher reads seeds from the local filesystem.
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(name)
}

// S3GetObjectAPI is the subset of the S3 client used by S3Fetcher.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads seeds from a knowledge bucket.
type S3Fetcher struct {
	client S3GetObjectAPI
	bucket string
}

func NewS3Fetcher(client S3GetObjectAPI, bucket string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket}
}

func (f *S3Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: s3 get %s/%s: %w", f.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
