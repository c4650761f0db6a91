package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oppredict/oppredict/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver only needs the handful of query
// methods it actually calls.

// MarketArchiveStore provides read access to settled markets.
type MarketArchiveStore interface {
	// ListResolvedBefore returns markets resolved strictly before the cutoff.
	ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// PredictionArchiveStore provides read and prune access to predictions.
type PredictionArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error)
	// DeleteByMarket removes all predictions for a market and returns the
	// number of rows deleted.
	DeleteByMarket(ctx context.Context, marketID string) (int64, error)
}

// settlementSnapshot is the document uploaded per archived market. It
// captures everything needed to audit the settlement after the predictions
// have been pruned from the primary store.
type settlementSnapshot struct {
	Market      domain.Market       `json:"market"`
	Predictions []domain.Prediction `json:"predictions"`
	ArchivedAt  time.Time           `json:"archived_at"`
}

// ArchiveImpl implements domain.Archiver by querying the stores for settled
// markets past the retention cutoff, uploading a JSON snapshot of each
// settlement to S3, and pruning the archived predictions from the primary
// store. The market row itself is kept so history endpoints keep working.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	markets     MarketArchiveStore
	predictions PredictionArchiveStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, markets MarketArchiveStore, predictions PredictionArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		markets:     markets,
		predictions: predictions,
	}
}

// ArchiveSettlements uploads a snapshot for every market resolved before the
// cutoff and prunes its predictions. Markets whose predictions are already
// gone were archived by an earlier run and are skipped, which makes repeated
// runs over the same cutoff safe. It returns the number of markets archived.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}

	var archived int64
	for _, m := range markets {
		predictions, err := a.predictions.ListByMarket(ctx, m.ID)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive settlements list predictions %s: %w", m.ID, err)
		}
		if len(predictions) == 0 {
			continue
		}

		snapshot := settlementSnapshot{
			Market:      m,
			Predictions: predictions,
			ArchivedAt:  time.Now().UTC(),
		}

		buf, err := marshalSnapshot(snapshot)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive settlements marshal %s: %w", m.ID, err)
		}

		path := settlementPath(m)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
			return archived, fmt.Errorf("s3blob: archive settlements upload %s: %w", m.ID, err)
		}

		if _, err := a.predictions.DeleteByMarket(ctx, m.ID); err != nil {
			return archived, fmt.Errorf("s3blob: archive settlements prune %s: %w", m.ID, err)
		}

		archived++
	}

	return archived, nil
}

// settlementPath builds the S3 key for a settlement snapshot, partitioned by
// the year-month of the resolution time.
//
//	archive/settlements/2025-01/<market-id>.json
func settlementPath(m domain.Market) string {
	month := m.CreatedAt
	if m.ResolvedAt != nil {
		month = *m.ResolvedAt
	}
	return fmt.Sprintf("archive/settlements/%s/%s.json", month.Format("2006-01"), m.ID)
}

// marshalSnapshot serialises a snapshot as compact JSON.
func marshalSnapshot(s settlementSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
