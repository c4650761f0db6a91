package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppredict/oppredict/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	return nil
}

type memArchiveStores struct {
	markets     []domain.Market
	predictions map[string][]domain.Prediction
}

func (m *memArchiveStores) ListResolvedBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, mk := range m.markets {
		if mk.ResolvedAt != nil && mk.ResolvedAt.Before(before) {
			out = append(out, mk)
		}
	}
	return out, nil
}

func (m *memArchiveStores) ListByMarket(_ context.Context, marketID string) ([]domain.Prediction, error) {
	return m.predictions[marketID], nil
}

func (m *memArchiveStores) DeleteByMarket(_ context.Context, marketID string) (int64, error) {
	n := int64(len(m.predictions[marketID]))
	delete(m.predictions, marketID)
	return n, nil
}

func resolvedMarket(id string, resolvedAt time.Time) domain.Market {
	winner := 1
	return domain.Market{
		ID:                id,
		Question:          "Q",
		ResolvedOutcomeID: &winner,
		ResolvedAt:        &resolvedAt,
	}
}

func TestArchiveSettlements_UploadsAndPrunes(t *testing.T) {
	old := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	recent := time.Now().UTC()

	stores := &memArchiveStores{
		markets: []domain.Market{
			resolvedMarket("m-old", old),
			resolvedMarket("m-recent", recent),
		},
		predictions: map[string][]domain.Prediction{
			"m-old":    {{ID: "p1", MarketID: "m-old"}, {ID: "p2", MarketID: "m-old"}},
			"m-recent": {{ID: "p3", MarketID: "m-recent"}},
		},
	}
	writer := newMemWriter()
	archiver := NewArchiver(writer, stores, stores)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	archived, err := archiver.ArchiveSettlements(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	// The old market's snapshot is uploaded under its resolution month.
	body, ok := writer.objects["archive/settlements/2025-01/m-old.json"]
	require.True(t, ok)

	var snap settlementSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "m-old", snap.Market.ID)
	assert.Len(t, snap.Predictions, 2)

	// Old predictions pruned, recent ones untouched.
	assert.Empty(t, stores.predictions["m-old"])
	assert.Len(t, stores.predictions["m-recent"], 1)
}

func TestArchiveSettlements_SkipsAlreadyArchived(t *testing.T) {
	old := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	stores := &memArchiveStores{
		markets:     []domain.Market{resolvedMarket("m-old", old)},
		predictions: map[string][]domain.Prediction{},
	}
	writer := newMemWriter()
	archiver := NewArchiver(writer, stores, stores)

	archived, err := archiver.ArchiveSettlements(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(0), archived)
	assert.Empty(t, writer.objects)
}

func TestArchiveSettlements_NothingPastCutoff(t *testing.T) {
	now := time.Now().UTC()
	stores := &memArchiveStores{
		markets:     []domain.Market{resolvedMarket("m1", now)},
		predictions: map[string][]domain.Prediction{"m1": {{ID: "p1"}}},
	}
	writer := newMemWriter()
	archiver := NewArchiver(writer, stores, stores)

	archived, err := archiver.ArchiveSettlements(context.Background(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(0), archived)
	assert.Len(t, stores.predictions["m1"], 1)
}
