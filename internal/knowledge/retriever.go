package knowledge

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// Retriever fetches the top-K documents and unsold items for a query vector.
type Retriever struct {
	store  Store
	k      int
	logger *logging.Logger
	tracer trace.Tracer
}

func NewRetriever(store Store, k int, logger *logging.Logger) *Retriever {
	if store == nil {
		panic("knowledge: store required")
	}
	if k <= 0 {
		k = DefaultTopK
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Retriever{store: store, k: k, logger: logger, tracer: otel.Tracer("autolead.knowledge")}
}

// Retrieve queries both corpora concurrently. A corpus that fails is
// logged and left empty while the other is still returned; the joined
// error is informational. A nil query yields an empty Grounding.
func (r *Retriever) Retrieve(ctx context.Context, tenantID string, query []float32) (Grounding, error) {
	if len(query) == 0 {
		return Grounding{}, nil
	}
	ctx, span := r.tracer.Start(ctx, "knowledge.retrieve", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("top_k", r.k),
	))
	defer span.End()

	var (
		g              Grounding
		docErr, invErr error
	)
	// Errors stay per corpus so one failure never cancels the other query.
	var eg errgroup.Group
	eg.Go(func() error {
		g.Documents, docErr = r.store.TopDocuments(ctx, tenantID, query, r.k)
		return nil
	})
	eg.Go(func() error {
		g.Inventory, invErr = r.store.TopInventory(ctx, tenantID, query, r.k)
		return nil
	})
	_ = eg.Wait()

	if docErr != nil {
		g.Documents = nil
		r.logger.Warn("document retrieval failed", "tenant_id", tenantID, "error", docErr)
		docErr = fmt.Errorf("knowledge: documents: %w", docErr)
	}
	if invErr != nil {
		g.Inventory = nil
		r.logger.Warn("inventory retrieval failed", "tenant_id", tenantID, "error", invErr)
		invErr = fmt.Errorf("knowledge: inventory: %w", invErr)
	}
	err := errors.Join(docErr, invErr)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("documents", len(g.Documents)), attribute.Int("items", len(g.Inventory)))
	return g, err
}
