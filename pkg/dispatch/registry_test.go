package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/k4lantar4/remnabot/pkg/logging"
)

type nopClient struct{}

func (nopClient) SendMessage(context.Context, int64, string) error { return nil }
func (nopClient) SetWebhook(context.Context, string, string) error { return nil }
func (nopClient) DeleteWebhook(context.Context) error              { return nil }

func newTestEntry(tenantID uuid.UUID, disp Dispatcher) *RegistryEntry {
	return &RegistryEntry{
		Client:     nopClient{},
		Dispatcher: disp,
		Queue: NewQueue(QueueOptions{
			TenantID:   tenantID,
			Size:       8,
			Workers:    1,
			Dispatcher: disp,
			Logger:     testLogger(),
		}),
	}
}

func testRegistryLogger() *logrus.Logger {
	return logging.ConsoleLogger(logrus.PanicLevel)
}

func TestRegistry_RegisterStartsQueue(t *testing.T) {
	reg := NewRegistry(testRegistryLogger())
	tenantID := uuid.New()

	entry := reg.Register(context.Background(), tenantID, newTestEntry(tenantID, &recordingDispatcher{}))
	require.Equal(t, StateRunning, entry.Queue.State())

	got, ok := reg.Lookup(tenantID)
	require.True(t, ok)
	require.Same(t, entry, got)
	require.Equal(t, 1, reg.Count())
}

func TestRegistry_RegisterTwiceKeepsExistingEntry(t *testing.T) {
	reg := NewRegistry(testRegistryLogger())
	tenantID := uuid.New()

	first := reg.Register(context.Background(), tenantID, newTestEntry(tenantID, &recordingDispatcher{}))
	second := newTestEntry(tenantID, &recordingDispatcher{})
	got := reg.Register(context.Background(), tenantID, second)

	require.Same(t, first, got)
	require.Equal(t, StateStopped, second.Queue.State()) // never started
	require.Equal(t, 1, reg.Count())
}

func TestRegistry_UnregisterDrainsBeforeRemoval(t *testing.T) {
	reg := NewRegistry(testRegistryLogger())
	tenantID := uuid.New()
	disp := &recordingDispatcher{}

	entry := reg.Register(context.Background(), tenantID, newTestEntry(tenantID, disp))
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, entry.Queue.Enqueue(&Update{UpdateID: i}))
	}

	reg.Unregister(context.Background(), tenantID)

	_, ok := reg.Lookup(tenantID)
	require.False(t, ok)
	require.Equal(t, StateStopped, entry.Queue.State())
	require.Len(t, disp.observed(), 5)
}

func TestRegistry_UnregisterUnknownTenantIsNoop(t *testing.T) {
	reg := NewRegistry(testRegistryLogger())
	reg.Unregister(context.Background(), uuid.New())
	require.Equal(t, 0, reg.Count())
}

func TestRegistry_ShutdownStopsAllQueues(t *testing.T) {
	reg := NewRegistry(testRegistryLogger())

	var entries []*RegistryEntry
	for i := 0; i < 3; i++ {
		tenantID := uuid.New()
		entries = append(entries, reg.Register(context.Background(), tenantID, newTestEntry(tenantID, &recordingDispatcher{})))
	}

	reg.Shutdown(context.Background())

	require.Equal(t, 0, reg.Count())
	for _, entry := range entries {
		require.Equal(t, StateStopped, entry.Queue.State())
	}
}
