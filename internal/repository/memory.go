package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/repository"
)

// MemoryBarStore serves bars from memory. Used by the CLI and tests.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar
}

var _ repository.BarStore = (*MemoryBarStore)(nil)

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{bars: make(map[string][]models.Bar)}
}

// Add stores bars for symbol, keeping them sorted by date.
func (s *MemoryBarStore) Add(symbol string, bars ...models.Bar) {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.bars[symbol], bars...)
	sort.Slice(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })
	s.bars[symbol] = all
}

func (s *MemoryBarStore) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bar
	for _, b := range s.bars[strings.ToUpper(symbol)] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// MemorySentimentStore keeps earnings events in memory.
type MemorySentimentStore struct {
	mu     sync.RWMutex
	nextID int64
	events map[int64]*models.EarningsEvent
}

var _ repository.SentimentStore = (*MemorySentimentStore)(nil)

func NewMemorySentimentStore() *MemorySentimentStore {
	return &MemorySentimentStore{events: make(map[int64]*models.EarningsEvent)}
}

func (s *MemorySentimentStore) ListEvents(ctx context.Context, symbol string, from, to time.Time) ([]models.EarningsEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EarningsEvent
	for _, e := range s.events {
		if !strings.EqualFold(e.Symbol, symbol) || e.EarningsDate.Before(from) || e.EarningsDate.After(to) {
			continue
		}
		cp := *e
		if e.Sentiment != nil {
			sc := *e.Sentiment
			cp.Sentiment = &sc
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarningsDate.Before(out[j].EarningsDate) })
	return out, nil
}

// UpsertEvent matches on (symbol, earnings date) and assigns e.ID.
func (s *MemorySentimentStore) UpsertEvent(ctx context.Context, e *models.EarningsEvent) error {
	if e == nil || e.Symbol == "" {
		return errs.Invalid("event symbol is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Cancelled(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.events {
		if strings.EqualFold(cur.Symbol, e.Symbol) && cur.EarningsDate.Equal(e.EarningsDate) {
			cur.Quarter = e.Quarter
			cur.Transcript = e.Transcript
			if e.Sentiment != nil {
				sc := *e.Sentiment
				cur.Sentiment = &sc
			}
			e.ID = id
			return nil
		}
	}
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	if e.Sentiment != nil {
		sc := *e.Sentiment
		cp.Sentiment = &sc
	}
	s.events[cp.ID] = &cp
	e.ID = cp.ID
	return nil
}

func (s *MemorySentimentStore) SaveSentiment(ctx context.Context, eventID int64, score models.SentimentScore) error {
	if err := ctx.Err(); err != nil {
		return errs.Cancelled(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return errs.NotFound("earnings event %d", eventID)
	}
	e.Sentiment = &score
	return nil
}

// SnapshotStore keeps the latest chain per underlying.
type SnapshotStore struct {
	mu     sync.RWMutex
	latest map[string]models.ChainSnapshot
}

var _ repository.ChainProvider = (*SnapshotStore)(nil)

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{latest: make(map[string]models.ChainSnapshot)}
}

// Save replaces the stored chain unless it is newer than s.
func (st *SnapshotStore) Save(s models.ChainSnapshot) bool {
	key := strings.ToUpper(s.Underlying)
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.latest[key]; ok && cur.AsOf.After(s.AsOf) {
		return false
	}
	st.latest[key] = s
	return true
}

func (st *SnapshotStore) LatestChain(_ context.Context, underlying string) (models.ChainSnapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.latest[strings.ToUpper(underlying)]
	if !ok {
		return models.ChainSnapshot{}, errs.NotFound("no chain snapshot for %s", underlying)
	}
	return s, nil
}

// Underlyings lists the symbols with a stored chain.
func (st *SnapshotStore) Underlyings() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.latest))
	for k := range st.latest {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
