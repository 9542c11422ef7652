package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/repository"
	pkgkafka "QuantLens/pkg/kafka"
)

type fakeSnapshotPublisher struct {
	published []string
	err       error
}

func (p *fakeSnapshotPublisher) Publish(_ context.Context, s *models.ChainSnapshot) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, s.Underlying)
	return nil
}

func (p *fakeSnapshotPublisher) Close() error { return nil }

func TestChainSnapshotHandler(t *testing.T) {
	store := repository.NewSnapshotStore()
	reports := &fakeReports{}
	h := NewChainSnapshotHandler("quantlens.chains", store, newOptions(store, reports), nil)
	assert.Equal(t, "quantlens.chains", h.Topic())

	b, err := json.Marshal(flatChain("SPY"))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	_, err = store.LatestChain(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, reports.surfaces)

	var perm *pkgkafka.PermanentError
	err = h.Handle(context.Background(), []byte("{broken"))
	assert.True(t, errors.As(err, &perm))

	err = h.Handle(context.Background(), []byte(`{"underlying":"SPY","spot":0}`))
	assert.True(t, errors.As(err, &perm))
}

func TestSnapshotProcessorBackends(t *testing.T) {
	ctx := context.Background()
	snap := flatChain("SPY")

	pub := &fakeSnapshotPublisher{}
	require.NoError(t, NewSnapshotProcessor(pub, nil, nil, nil, BackendKafka).Process(ctx, &snap))
	assert.Equal(t, []string{"SPY"}, pub.published)

	failing := &fakeSnapshotPublisher{err: errors.New("broker down")}
	assert.Error(t, NewSnapshotProcessor(failing, nil, nil, nil, BackendKafka).Process(ctx, &snap))

	store := repository.NewSnapshotStore()
	require.NoError(t, NewSnapshotProcessor(nil, store, newOptions(store, nil), nil, BackendDirect).Process(ctx, &snap))
	assert.Equal(t, []string{"SPY"}, store.Underlyings())

	assert.Error(t, NewSnapshotProcessor(nil, nil, nil, nil, "carrier-pigeon").Process(ctx, &snap))
}
