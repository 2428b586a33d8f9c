// Package friends manages friend records and friend requests.
//
// Friendship is directional: a Friend record belongs to its UserID and
// accepting a request creates only the record owned by the requester.
package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/metrics"
	"github.com/matheus3301/thriveup/internal/model"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned when a friend request is missing or lacks
// one of its parties.
var ErrInvalidRequest = errors.New("invalid friend request")

// Service is the friends data-access layer.
type Service struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewService creates a friends service.
func NewService(store docstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// FetchUserDetails returns the user whose uid field equals uid, or nil.
func (s *Service) FetchUserDetails(ctx context.Context, uid string) (*model.User, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Users).Where("uid", docstore.OpEqual, uid).Take(1))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", uid, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	u := model.UserFromDoc(docs[0])
	return &u, nil
}

// SendFriendRequest stores a new pending request. Repeated calls create
// separate requests.
func (s *Service) SendFriendRequest(ctx context.Context, fromUserID, toUserID string) (*model.FriendRequest, error) {
	req := model.FriendRequest{ID: uuid.NewString(), FromUserID: fromUserID, ToUserID: toUserID}
	if err := s.store.Set(ctx, model.FriendRequests, req.ID, req.Doc()); err != nil {
		metrics.IncFriendRequest(metrics.StatusFailed)
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	metrics.IncFriendRequest(metrics.StatusSuccess)
	s.logger.Info("friend request sent",
		zap.String("request_id", req.ID),
		zap.String("from", fromUserID),
		zap.String("to", toUserID))
	return &req, nil
}

// AcceptFriendRequest turns the request into one Friend record owned by
// the requester and deletes the request. The two writes are not atomic.
func (s *Service) AcceptFriendRequest(ctx context.Context, requestID string) (*model.Friend, error) {
	friend, err := s.acceptFriendRequest(ctx, requestID)
	if err != nil {
		metrics.IncFriendAccept(metrics.StatusFailed)
		return nil, err
	}
	metrics.IncFriendAccept(metrics.StatusSuccess)
	return friend, nil
}

func (s *Service) acceptFriendRequest(ctx context.Context, requestID string) (*model.Friend, error) {
	doc, err := s.store.Get(ctx, model.FriendRequests, requestID)
	if err != nil {
		return nil, fmt.Errorf("get friend request %s: %w", requestID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidRequest, requestID)
	}
	req, ok := model.FriendRequestFromDoc(*doc)
	if !ok {
		return nil, fmt.Errorf("%w: %s is malformed", ErrInvalidRequest, requestID)
	}

	friend := model.Friend{ID: uuid.NewString(), UserID: req.FromUserID, FriendID: req.ToUserID}
	if err := s.store.Set(ctx, model.Friends, friend.ID, friend.Doc()); err != nil {
		return nil, fmt.Errorf("add friend: %w", err)
	}
	if err := s.store.Delete(ctx, model.FriendRequests, requestID); err != nil {
		return nil, fmt.Errorf("delete friend request %s: %w", requestID, err)
	}
	s.logger.Info("friend request accepted",
		zap.String("request_id", requestID),
		zap.String("friend_id", friend.ID))
	return &friend, nil
}

// RemoveFriend deletes one Friend record by its own id. A symmetric record,
// if any, is left alone.
func (s *Service) RemoveFriend(ctx context.Context, friendRecordID string) error {
	if err := s.store.Delete(ctx, model.Friends, friendRecordID); err != nil {
		metrics.IncFriendRemoval(metrics.StatusFailed)
		return fmt.Errorf("remove friend %s: %w", friendRecordID, err)
	}
	metrics.IncFriendRemoval(metrics.StatusSuccess)
	return nil
}

// FetchFriends returns the Friend records owned by userID.
func (s *Service) FetchFriends(ctx context.Context, userID string) ([]model.Friend, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Friends).Where("userID", docstore.OpEqual, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch friends of %s: %w", userID, err)
	}
	friends := make([]model.Friend, 0, len(docs))
	for _, d := range docs {
		f, ok := model.FriendFromDoc(d)
		if !ok {
			s.logger.Warn("skipping malformed friend record", zap.String("doc_id", d.ID))
			continue
		}
		friends = append(friends, f)
	}
	return friends, nil
}

// FetchFriendRequests returns the pending requests addressed to userID.
func (s *Service) FetchFriendRequests(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.FriendRequests).Where("toUserID", docstore.OpEqual, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch friend requests of %s: %w", userID, err)
	}
	requests := make([]model.FriendRequest, 0, len(docs))
	for _, d := range docs {
		r, ok := model.FriendRequestFromDoc(d)
		if !ok {
			s.logger.Warn("skipping malformed friend request", zap.String("doc_id", d.ID))
			continue
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// FetchAllUsers returns every user.
func (s *Service) FetchAllUsers(ctx context.Context) ([]model.User, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Users))
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, model.UserFromDoc(d))
	}
	return users, nil
}

// FetchUsersExcludingFriends returns every user except currentUserID and
// the users it already owns a Friend record for.
func (s *Service) FetchUsersExcludingFriends(ctx context.Context, currentUserID string) ([]model.User, error) {
	friends, err := s.FetchFriends(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	exclude := make(map[string]struct{}, len(friends)+1)
	exclude[currentUserID] = struct{}{}
	for _, f := range friends {
		exclude[f.FriendID] = struct{}{}
	}

	users, err := s.FetchAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		if _, skip := exclude[u.ID]; !skip {
			out = append(out, u)
		}
	}
	return out, nil
}
