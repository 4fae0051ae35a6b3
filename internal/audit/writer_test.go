package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Record(nil), records...))
	return m.err
}

func (m *memStorage) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func event(i int, p domain.EventPayload) domain.Event {
	return domain.Event{Type: p.EventType(), Data: p, Timestamp: 1_700_000_000_000 + int64(i), ID: fmt.Sprintf("evt-%d", i)}
}

func TestFromEvent(t *testing.T) {
	rec, err := FromEvent(event(1, domain.AddressFlagged{Address: "5abc", Reason: "scam"}))
	require.NoError(t, err)

	assert.Equal(t, "evt-1", rec.ID)
	assert.Equal(t, domain.EventFlag, rec.Type)
	assert.Equal(t, "5abc", rec.Address)
	assert.JSONEq(t, `{"address":"5abc","reason":"scam"}`, string(rec.Payload))
	assert.Equal(t, int64(1_700_000_000_001), rec.Timestamp.UnixMilli())

	rec, err = FromEvent(event(2, domain.CapSet{Cap: 5}))
	require.NoError(t, err)
	assert.Empty(t, rec.Address)
	var set domain.CapSet
	require.NoError(t, json.Unmarshal(rec.Payload, &set))
	assert.Equal(t, domain.Balance(5), set.Cap)
}

func TestWriterDrainsOnStop(t *testing.T) {
	store := &memStorage{}
	w := NewWriter(store, zap.NewNop(), WithFlushInterval(time.Hour))
	w.Start()

	for i := 0; i < 250; i++ {
		w.Record(event(i, domain.AddressChecked{Address: "5abc", Amount: domain.Balance(i)}))
	}
	w.Stop()

	recs := store.all()
	require.Len(t, recs, 250)
	assert.Equal(t, "evt-0", recs[0].ID)
	assert.Equal(t, "evt-249", recs[249].ID)
	assert.Len(t, store.batches, 3, "two full batches by size and one final flush")
}

func TestWriterFlushesByTicker(t *testing.T) {
	store := &memStorage{}
	w := NewWriter(store, zap.NewNop(), WithFlushInterval(10*time.Millisecond))
	w.Start()
	defer w.Stop()

	w.Record(event(1, domain.CapSet{Cap: 1}))

	assert.Eventually(t, func() bool { return len(store.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriterShedsLoadWhenFull(t *testing.T) {
	store := &memStorage{}
	w := NewWriter(store, zap.NewNop(), WithBufferSize(1))

	// воркер еще не запущен: второе событие не помещается в буфер
	w.Record(event(1, domain.CapSet{Cap: 1}))
	w.Record(event(2, domain.CapSet{Cap: 2}))

	w.Start()
	w.Stop()

	recs := store.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "evt-1", recs[0].ID)
}

func TestWriterRecordAfterStopIsDropped(t *testing.T) {
	store := &memStorage{}
	w := NewWriter(store, zap.NewNop())
	w.Start()
	w.Stop()

	assert.NotPanics(t, func() { w.Record(event(1, domain.CapSet{Cap: 1})) })
	assert.NotPanics(t, w.Stop)
	assert.Empty(t, store.all())
}

func TestWriterSurvivesStorageErrors(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	w := NewWriter(store, zap.NewNop())
	w.Start()

	w.Record(event(1, domain.CapSet{Cap: 1}))
	w.Stop()

	assert.Len(t, store.batches, 1)
}
