// Package backend connects to the remote document store and resolves the
// signed-in user from the configuration.
package backend

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/config"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/identity"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Backend is an opened document store plus the identity of its user.
type Backend struct {
	Store    docstore.Store
	Identity identity.Provider

	firestore *firestore.Client
}

// Open connects to the backend cfg selects. The memory backend publishes
// its change events on b.
func Open(ctx context.Context, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Info("using in-memory document store")
		id, err := devIdentity(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: docstore.NewMemory(b), Identity: id}, nil

	case config.BackendFirestore:
		app, err := newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firestore: %w", err)
		}
		logger.Info("firestore client initialized", zap.String("project_id", cfg.Firebase.ProjectID))

		id, err := firebaseIdentity(ctx, cfg, app, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Store: docstore.NewFirestore(client), Identity: id, firestore: client}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Close releases the remote connection, if any.
func (b *Backend) Close() error {
	if b.firestore == nil {
		return nil
	}
	return b.firestore.Close()
}

func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

func firebaseIdentity(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zap.Logger) (identity.Provider, error) {
	if cfg.Auth.IDToken == "" {
		return devIdentity(cfg, logger)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return identity.NewFirebaseToken(authClient, cfg.Auth.IDToken, logger), nil
}

// devIdentity resolves the user without Firebase Auth: a dev token when one
// is configured, else the fixed user id, which may be empty.
func devIdentity(cfg *config.Config, logger *zap.Logger) (identity.Provider, error) {
	if cfg.Auth.DevToken != "" {
		return identity.NewDevToken(cfg.Auth.DevSecret, cfg.Auth.DevToken, logger), nil
	}
	return identity.Static(cfg.Auth.UserID), nil
}
