package session

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"transcript-client/internal/common/errors"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/common/metrics"
	"transcript-client/internal/models"
	"transcript-client/internal/storage"
)

// Durable keys shared with every other client of the same storage.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrNoToken is returned by Token when nobody has signed in.
var ErrNoToken = errors.NewNotAuthenticatedError("no token in client storage")

// IdentitySetter receives the identity loaded by Restore.
type IdentitySetter interface {
	Set(*models.Identity)
}

// Store persists the auth token and the signed-in user.
type Store struct {
	store  storage.Store
	logger logger.Logger
}

func New(store storage.Store, log logger.Logger) *Store {
	return &Store{
		store:  store,
		logger: log.Named("session"),
	}
}

func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, KeyToken)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return "", ErrNoToken
	}
	if err != nil {
		return "", errors.NewStorageReadError(KeyToken, err)
	}
	return token, nil
}

// Identity returns the persisted user, or nil when none is stored.
func (s *Store) Identity(ctx context.Context) (*models.Identity, error) {
	raw, err := s.store.Get(ctx, KeyUser)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageReadError(KeyUser, err)
	}

	ident, err := models.ParseIdentity(json.RawMessage(raw))
	if err != nil {
		return nil, errors.NewStorageReadError(KeyUser, err)
	}
	return ident, nil
}

// Restore seeds holder with the persisted user, if any.
func (s *Store) Restore(ctx context.Context, holder IdentitySetter) error {
	ident, err := s.Identity(ctx)
	if err != nil {
		return err
	}
	if ident == nil {
		s.logger.Debug("no persisted identity", nil)
		return nil
	}
	holder.Set(ident)
	s.logger.Info("identity restored", map[string]interface{}{
		"user_id":      ident.ID,
		"account_type": ident.AccountType,
	})
	return nil
}

// Commit writes the token and the user bytes as one step. Backends that
// batch write both at once; the rest write token then user and put the old
// token back if the user write fails.
func (s *Store) Commit(ctx context.Context, token string, user json.RawMessage) error {
	entries := []storage.Entry{
		{Key: KeyToken, Value: token},
		{Key: KeyUser, Value: string(user)},
	}

	if bw, ok := s.store.(storage.BatchWriter); ok {
		if err := bw.SetAll(ctx, entries); err != nil {
			metrics.StorageWritesTotal.WithLabelValues("failed").Inc()
			return errors.NewStorageWriteError(KeyToken+","+KeyUser, err)
		}
		metrics.StorageWritesTotal.WithLabelValues("success").Inc()
		return nil
	}

	return s.commitSequential(ctx, token, user)
}

func (s *Store) commitSequential(ctx context.Context, token string, user json.RawMessage) error {
	previous, err := s.store.Get(ctx, KeyToken)
	hadPrevious := err == nil
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		metrics.StorageWritesTotal.WithLabelValues("failed").Inc()
		return errors.NewStorageReadError(KeyToken, err)
	}

	if err := s.store.Set(ctx, KeyToken, token); err != nil {
		metrics.StorageWritesTotal.WithLabelValues("failed").Inc()
		return errors.NewStorageWriteError(KeyToken, err)
	}

	if err := s.store.Set(ctx, KeyUser, string(user)); err != nil {
		metrics.StorageWritesTotal.WithLabelValues("rolled_back").Inc()
		s.rollbackToken(ctx, previous, hadPrevious)
		return errors.NewStorageWriteError(KeyUser, err)
	}

	metrics.StorageWritesTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Store) rollbackToken(ctx context.Context, previous string, hadPrevious bool) {
	var err error
	if hadPrevious {
		err = s.store.Set(ctx, KeyToken, previous)
	} else {
		err = s.store.Delete(ctx, KeyToken)
	}
	if err != nil {
		s.logger.WithError(err).Error("token rollback failed", map[string]interface{}{
			"restore": hadPrevious,
		})
	}
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyToken, KeyUser); err != nil {
		return errors.NewStorageWriteError(KeyToken+","+KeyUser, err)
	}
	return nil
}
