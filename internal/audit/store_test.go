package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryByRequestID(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	p := New(cfg, nil)
	defer p.Close()

	p.Log(context.Background(), Entry{
		Type:      TypeOrder,
		Action:    "create_order",
		UserID:    "user123",
		IPAddress: "1.2.3.4",
		RequestID: "unique-req-id-12345",
	})
	require.NoError(t, p.Flush(context.Background()))

	store := NewStore(cfg.LogDir)
	entry, err := store.GetByRequestID("unique-req-id-12345")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "create_order", entry.Action)
	assert.Equal(t, "user123", entry.UserID)
}

func TestQueryByRequestIDMissing(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	p := New(cfg, nil)
	defer p.Close()

	p.Log(context.Background(), Entry{Type: TypeOrder, Action: "a", UserID: "u", IPAddress: "1.2.3.4"})
	require.NoError(t, p.Flush(context.Background()))

	store := NewStore(cfg.LogDir)
	entry, err := store.GetByRequestID("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestQueryFilterAndPaging(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	p := New(cfg, nil)
	defer p.Close()

	for i := 0; i < 10; i++ {
		typ := TypeAccess
		if i%2 == 0 {
			typ = TypeOrder
		}
		p.Log(context.Background(), Entry{Type: typ, Action: "act", UserID: "u", IPAddress: "1.2.3.4"})
	}
	require.NoError(t, p.Flush(context.Background()))

	store := NewStore(cfg.LogDir)
	page, err := store.Query(Filter{Type: TypeOrder, HasType: true}, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Len(t, page.Entries, 3)
	assert.True(t, page.HasMore)

	count, err := store.Count(Filter{Type: TypeAccess, HasType: true})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestQueryEmptyFilterMatchesEverything(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	p := New(cfg, nil)
	defer p.Close()

	p.Log(context.Background(), Entry{Type: TypeOrder, Action: "a", UserID: "u", IPAddress: "1.2.3.4", RequestID: "r1"})
	p.Log(context.Background(), Entry{Type: TypeOrder, Action: "b", UserID: "u", IPAddress: "1.2.3.4"})
	require.NoError(t, p.Flush(context.Background()))

	store := NewStore(cfg.LogDir)
	// An empty RequestID filter means "don't filter on this dimension", so
	// it must match entries both with and without a request_id.
	count, err := store.Count(Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
