// Package client talks to a session daemon over its unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/thriveup/internal/api"
	"github.com/matheus3301/thriveup/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	return Dial("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Dial connects to target with opts.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListNotifications returns the daemon's working set.
func (c *Client) ListNotifications(ctx context.Context) ([]model.NotificationItem, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, api.MethodListNotifications, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return api.NotificationsFromList(out), nil
}

// OpenChat opens the thread with senderID, dismissing the sender's
// notifications. It returns the thread id and the dismissed count.
func (c *Client) OpenChat(ctx context.Context, senderID string) (string, int, error) {
	in, err := structpb.NewStruct(map[string]any{"sender_id": senderID})
	if err != nil {
		return "", 0, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodOpenChat, in, out); err != nil {
		return "", 0, err
	}
	m := out.AsMap()
	threadID, _ := m["thread_id"].(string)
	dismissed, _ := m["dismissed"].(float64)
	return threadID, int(dismissed), nil
}

// Status returns the daemon's session status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodGetStatus, &emptypb.Empty{}, out); err != nil {
		return api.Status{}, err
	}
	return api.StatusFromStruct(out), nil
}

// Watch streams notification updates until ctx is done or the daemon goes
// away. The returned channel is closed when the stream ends; the error
// channel receives at most one error.
func (c *Client) Watch(ctx context.Context) (<-chan api.Update, <-chan error, error) {
	stream, err := c.conn.NewStream(ctx, &api.ServiceDesc.Streams[0], api.MethodWatchNotifications)
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	updates := make(chan api.Update)
	errc := make(chan error, 1)
	go func() {
		defer close(updates)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					errc <- err
				}
				return
			}
			select {
			case updates <- api.UpdateFromStruct(msg):
			case <-ctx.Done():
				return
			}
		}
	}()
	return updates, errc, nil
}
