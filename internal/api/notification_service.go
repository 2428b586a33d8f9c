package api

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/notify"
	"github.com/matheus3301/thriveup/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Synchronizer is the part of notify.Synchronizer the service exposes.
type Synchronizer interface {
	State() status.State
	UserID() string
	Notifications() []model.NotificationItem
	OpenChat(ctx context.Context, senderID string) (*model.ChatThread, int, error)
}

// NotificationService implements NotificationServer.
type NotificationService struct {
	sessionName string
	startedAt   time.Time
	sync        Synchronizer
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewNotificationService creates the service for one session.
func NewNotificationService(sessionName string, sync Synchronizer, b *bus.Bus, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		sync:        sync,
		bus:         b,
		logger:      logger,
	}
}

func (s *NotificationService) ListNotifications(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	list, err := NotificationsToList(s.sync.Notifications())
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode notifications: %v", err)
	}
	return list, nil
}

func (s *NotificationService) OpenChat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	senderID := str(req.AsMap(), "sender_id")
	if senderID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "sender_id is required")
	}

	thread, dismissed, err := s.sync.OpenChat(ctx, senderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"thread_id": thread.ID,
		"dismissed": dismissed,
	})
}

func (s *NotificationService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"session":       s.sessionName,
		"state":         string(s.sync.State()),
		"user_id":       s.sync.UserID(),
		"notifications": len(s.sync.Notifications()),
		"uptime_ms":     time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *NotificationService) WatchNotifications(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe("notification.", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, ok, err := updateFromEvent(evt)
			if err != nil {
				s.logger.Warn("failed to encode notification update", zap.Error(err), zap.String("kind", evt.Kind))
				continue
			}
			if !ok {
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, notify.ErrNotStarted):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, notify.ErrUnknownSender):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
