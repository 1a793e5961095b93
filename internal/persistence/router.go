// Package persistence saves dream records either on the device or in the
// account-scoped remote store, depending on the session.
package persistence

import (
	"context"
	"strconv"
	"strings"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
	"go.uber.org/zap"
)

// Session is the identity the caller acts as. It is consulted, never owned.
type Session struct {
	Token string
	Guest bool
}

// Authenticated reports whether operations should go to the remote store.
func (s Session) Authenticated() bool {
	return s.Token != "" && !s.Guest
}

// RecordStore is one storage backend for dream records.
type RecordStore interface {
	Create(ctx context.Context, rec models.DreamRecord) (models.DreamRecord, error)
	List(ctx context.Context, q models.ListQuery) (*models.RecordPage, error)
	Get(ctx context.Context, id string) (models.DreamRecord, error)
	Update(ctx context.Context, id string, patch models.RecordPatch) (models.DreamRecord, error)
	Delete(ctx context.Context, id string) error
}

// RemoteFactory returns the remote store bound to an authenticated session.
type RemoteFactory func(s Session) RecordStore

type Router struct {
	local  RecordStore
	remote RemoteFactory
	now    func() time.Time
	logger *zap.Logger
}

func NewRouter(local RecordStore, remote RemoteFactory, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		local:  local,
		remote: remote,
		now:    time.Now,
		logger: logger.With(zap.String("component", "persistence")),
	}
}

// route picks the store for a session. An authenticated session with no
// remote store configured is an error; it never lands in the local store.
func (r *Router) route(op string, s Session) (RecordStore, bool, error) {
	if !s.Authenticated() {
		return r.local, false, nil
	}
	if r.remote == nil {
		return nil, true, apperr.Newf(apperr.NotConfigured, op, "no remote store for authenticated session")
	}
	return r.remote(s), true, nil
}

// Save persists a new record. The record gets a timestamp id and creation
// time when it has none; the remote store replaces the id with its own.
func (r *Router) Save(ctx context.Context, s Session, rec models.DreamRecord) (models.DreamRecord, error) {
	now := r.now()
	if rec.ID == "" {
		rec.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = models.UntitledDream
	}

	store, remote, err := r.route("persistence.Save", s)
	if err != nil {
		r.logger.Warn("save refused", zap.Error(err))
		return models.DreamRecord{}, apperr.New(apperr.RemoteWriteFailed, "persistence.Save", err)
	}
	saved, err := store.Create(ctx, rec)
	if err != nil {
		r.logger.Warn("save failed", zap.Bool("remote", remote), zap.Error(err))
		if remote {
			return models.DreamRecord{}, apperr.New(apperr.RemoteWriteFailed, "persistence.Save", err)
		}
		return models.DreamRecord{}, err
	}
	r.logger.Debug("dream saved", zap.String("id", saved.ID), zap.Bool("remote", remote))
	return saved, nil
}

func (r *Router) List(ctx context.Context, s Session, q models.ListQuery) (*models.RecordPage, error) {
	store, _, err := r.route("persistence.List", s)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, q.Normalized())
}

func (r *Router) Get(ctx context.Context, s Session, id string) (models.DreamRecord, error) {
	if id == "" {
		return models.DreamRecord{}, apperr.Newf(apperr.InvalidInput, "persistence.Get", "record id is required")
	}
	store, _, err := r.route("persistence.Get", s)
	if err != nil {
		return models.DreamRecord{}, err
	}
	return store.Get(ctx, id)
}

// Update overwrites the fields set in patch. A missing record is not_found;
// any other remote failure is remote_write_failed.
func (r *Router) Update(ctx context.Context, s Session, id string, patch models.RecordPatch) (models.DreamRecord, error) {
	if id == "" {
		return models.DreamRecord{}, apperr.Newf(apperr.InvalidInput, "persistence.Update", "record id is required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		title := models.UntitledDream
		patch.Title = &title
	}

	store, remote, err := r.route("persistence.Update", s)
	if err != nil {
		r.logger.Warn("update refused", zap.String("id", id), zap.Error(err))
		return models.DreamRecord{}, apperr.New(apperr.RemoteWriteFailed, "persistence.Update", err)
	}
	updated, err := store.Update(ctx, id, patch)
	if err != nil {
		r.logger.Warn("update failed", zap.String("id", id), zap.Bool("remote", remote), zap.Error(err))
		if remote && apperr.ReasonOf(err) != apperr.NotFound {
			return models.DreamRecord{}, apperr.New(apperr.RemoteWriteFailed, "persistence.Update", err)
		}
		return models.DreamRecord{}, err
	}
	return updated, nil
}

func (r *Router) Delete(ctx context.Context, s Session, id string) error {
	if id == "" {
		return apperr.Newf(apperr.InvalidInput, "persistence.Delete", "record id is required")
	}
	store, _, err := r.route("persistence.Delete", s)
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}
