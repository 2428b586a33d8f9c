package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/thriveup/internal/api"
	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/notify"
	"github.com/matheus3301/thriveup/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSync struct {
	mu     sync.Mutex
	userID string
	items  []model.NotificationItem
}

func (f *fakeSync) State() status.State {
	if f.UserID() == "" {
		return status.Idle
	}
	return status.Listening
}

func (f *fakeSync) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeSync) Notifications() []model.NotificationItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.NotificationItem(nil), f.items...)
}

func (f *fakeSync) OpenChat(_ context.Context, senderID string) (*model.ChatThread, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userID == "" {
		return nil, 0, notify.ErrNotStarted
	}
	if senderID == "ghost" {
		return nil, 0, fmt.Errorf("%w: %s", notify.ErrUnknownSender, senderID)
	}
	kept := f.items[:0]
	n := 0
	for _, it := range f.items {
		if it.SenderID == senderID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	f.items = kept
	return &model.ChatThread{ID: f.userID + "_" + senderID}, n, nil
}

func startServer(t *testing.T, sync api.Synchronizer, b *bus.Bus) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.Register(srv, api.NewNotificationService("test", sync, b, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatusAndList(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeSync{userID: "u1", items: []model.NotificationItem{
		{ID: "m1", SenderID: "u2", Name: "Ben", ProfileImageURL: "https://x/b.png", Timestamp: ts},
	}}
	c := startServer(t, f, bus.New())
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Session)
	assert.Equal(t, string(status.Listening), st.State)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, 1, st.Notifications)

	items, err := c.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m1", items[0].ID)
	assert.Equal(t, "Ben", items[0].Name)
	assert.True(t, ts.Equal(items[0].Timestamp))
}

func TestOpenChat(t *testing.T) {
	f := &fakeSync{userID: "u1", items: []model.NotificationItem{
		{ID: "m1", SenderID: "u2"}, {ID: "m2", SenderID: "u3"}, {ID: "m3", SenderID: "u2"},
	}}
	c := startServer(t, f, bus.New())
	ctx := context.Background()

	threadID, dismissed, err := c.OpenChat(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", threadID)
	assert.Equal(t, 2, dismissed)

	items, err := c.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m2", items[0].ID)
}

func TestOpenChatErrors(t *testing.T) {
	ctx := context.Background()

	c := startServer(t, &fakeSync{userID: "u1"}, bus.New())
	_, _, err := c.OpenChat(ctx, "")
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))
	_, _, err = c.OpenChat(ctx, "ghost")
	assert.Equal(t, codes.NotFound, grpcstatus.Code(err))

	idle := startServer(t, &fakeSync{}, bus.New())
	_, _, err = idle.OpenChat(ctx, "u2")
	assert.Equal(t, codes.FailedPrecondition, grpcstatus.Code(err))
}

func TestWatch(t *testing.T) {
	b := bus.New()
	c := startServer(t, &fakeSync{userID: "u1"}, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, _, err := c.Watch(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.Emit(bus.KindStateChanged, status.StateChange{From: status.Idle, To: status.Listening})
	b.Emit(bus.KindNotificationCreated, model.NotificationItem{ID: "m1", SenderID: "u2", Name: "Ben"})
	b.Emit(bus.KindNotificationDismissed, notify.Dismissal{ThreadID: "u1_u2", SenderID: "u2", IDs: []string{"m1"}})

	created := <-updates
	assert.Equal(t, bus.KindNotificationCreated, created.Kind)
	require.NotNil(t, created.Notification)
	assert.Equal(t, "Ben", created.Notification.Name)

	dismissed := <-updates
	assert.Equal(t, bus.KindNotificationDismissed, dismissed.Kind)
	assert.Equal(t, "u1_u2", dismissed.ThreadID)
	assert.Equal(t, []string{"m1"}, dismissed.IDs)

	cancel()
	for range updates {
	}
}
