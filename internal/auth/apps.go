package auth

import (
	"context" // Request-scoped context
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"regexp"  // App id pattern

	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Secret hashing

	"banker_api/internal/domain" // Models and error kinds
	"banker_api/internal/store"  // RecordStore contract
)

var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AppStore keeps registered apps in the apps table.
type AppStore struct {
	records store.RecordStore
}

// NewAppStore returns an AppStore over records.
func NewAppStore(records store.RecordStore) *AppStore {
	return &AppStore{records: records}
}

// Register stores a new app with a bcrypt hash of secret.
func (s *AppStore) Register(ctx context.Context, appID, secret string, scopes []string) (domain.App, error) {
	if !appIDPattern.MatchString(appID) {
		return domain.App{}, domain.Invalid("app_id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if len(secret) < 8 || len(secret) > 72 {
		return domain.App{}, domain.Invalid("secret", "must be 8-72 characters")
	}
	for _, scope := range scopes {
		if scope == ScopeBanker {
			return domain.App{}, domain.Invalid("scopes", "banker cannot be granted")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return domain.App{}, fmt.Errorf("hash secret: %w", err)
	}
	if scopes == nil {
		scopes = []string{}
	}
	_, err = s.records.CreateUnique(ctx, store.TableApps, appID, store.Fields{
		"app_id":      appID,
		"secret_hash": string(hash),
		"scopes":      scopes,
	})
	if errors.Is(err, store.ErrExists) {
		return domain.App{}, domain.Invalid("app_id", "already registered")
	}
	if err != nil {
		return domain.App{}, fmt.Errorf("%w: register app: %v", domain.ErrStore, err)
	}
	logrus.WithFields(logrus.Fields{
		"app_id": appID,
		"scopes": scopes,
	}).Info("App registered")
	return domain.App{ID: appID, SecretHash: string(hash), Scopes: scopes}, nil
}

// Find returns the app with appID.
func (s *AppStore) Find(ctx context.Context, appID string) (domain.App, error) {
	rec, err := s.records.Lookup(ctx, store.TableApps, appID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.App{}, fmt.Errorf("app %s: %w", appID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.App{}, fmt.Errorf("%w: find app: %v", domain.ErrStore, err)
	}
	f := rec.Fields
	return domain.App{
		ID:         f.String("app_id"),
		SecretHash: f.String("secret_hash"),
		Scopes:     f.Strings("scopes"),
	}, nil
}

// Authenticate returns the app when secret matches its stored hash.
func (s *AppStore) Authenticate(ctx context.Context, appID, secret string) (domain.App, error) {
	app, err := s.Find(ctx, appID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.App{}, fmt.Errorf("%w: invalid credentials", domain.ErrAuth)
	}
	if err != nil {
		return domain.App{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(app.SecretHash), []byte(secret)); err != nil {
		return domain.App{}, fmt.Errorf("%w: invalid credentials", domain.ErrAuth)
	}
	return app, nil
}
