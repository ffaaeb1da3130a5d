// Package hybrid selects and wraps storage backends. Open is the single
// construction point: it maps a configured mode onto a concrete backend,
// and in hybrid mode layers the remote document store over the embedded
// engine with runtime switching between them.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/remote"
	"github.com/keeperhq/stockpile/internal/sqlite"
	"github.com/keeperhq/stockpile/pkg/types"
)

// Open constructs the backend for config.Mode. The returned store is
// detached; callers Attach it themselves.
func Open(config types.Config, log *zap.Logger) (types.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Mode {
	case types.ModeLocal:
		return sqlite.New(log), nil
	case types.ModePostgres:
		return remote.NewPostgres(log), nil
	case types.ModeDocument:
		return remote.NewDocument(log), nil
	case types.ModeHybrid:
		return &Store{
			local:  sqlite.New(log),
			remote: remote.NewDocument(log),
			log:    log,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrModeUnknown, config.Mode)
}

// Store is the hybrid backend: remote-first with the embedded engine as
// fallback. The active side can be switched at runtime; statements always
// execute against the side active at call time.
type Store struct {
	mu     sync.RWMutex
	config types.Config
	local  types.Store
	remote types.Store
	active types.Store
	log    *zap.Logger
}

// Mode reports the mode of the currently active side.
func (h *Store) Mode() types.Mode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.active == nil {
		return types.ModeHybrid
	}
	return h.active.Mode()
}

// Attach tries the remote side first and falls back to the embedded
// engine when the remote attach fails. Only the surviving side is
// attached; the other stays dormant until Switch.
func (h *Store) Attach(config types.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != nil {
		return types.ErrAlreadyAttached
	}
	h.config = config

	err := h.remote.Attach(config)
	if err == nil {
		h.active = h.remote
		h.log.Info("hybrid attached", zap.String("side", "remote"))
		return nil
	}
	h.log.Warn("remote attach failed, falling back to embedded engine", zap.Error(err))

	if err := h.local.Attach(config); err != nil {
		return fmt.Errorf("fallback attach: %w", err)
	}
	h.active = h.local
	h.log.Info("hybrid attached", zap.String("side", "local"))
	return nil
}

// Switch changes the active side at runtime, attaching the target side if
// it is still dormant. The previous side stays attached so its state
// survives a switch back.
func (h *Store) Switch(ctx context.Context, useRemote bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == nil {
		return types.ErrStoreDetached
	}

	target := h.local
	side := "local"
	if useRemote {
		target = h.remote
		side = "remote"
	}
	if target == h.active {
		return nil
	}

	if err := target.Attach(h.config); err != nil && !errors.Is(err, types.ErrAlreadyAttached) {
		return fmt.Errorf("switch to %s: %w", side, err)
	}
	h.active = target
	h.log.Info("hybrid switched", zap.String("side", side))
	return nil
}

// Detach detaches both sides. Errors from either side are joined into
// one; a pending snapshot flush on the embedded side still happens even
// when the remote side fails to detach.
func (h *Store) Detach(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == nil {
		return nil
	}

	var errRemote, errLocal error
	errRemote = h.remote.Detach(ctx)
	errLocal = h.local.Detach(ctx)
	h.active = nil

	if errRemote != nil {
		return errRemote
	}
	return errLocal
}

// Prepare returns a statement that resolves the active side per call, so
// a prepared statement follows a later Switch.
func (h *Store) Prepare(query string) types.Statement {
	return &hybridStatement{store: h, query: query}
}

type hybridStatement struct {
	store *Store
	query string
}

func (s *hybridStatement) current() (types.Statement, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if s.store.active == nil {
		return nil, types.ErrStoreDetached
	}
	return s.store.active.Prepare(s.query), nil
}

func (s *hybridStatement) Run(ctx context.Context, params ...any) (types.Result, error) {
	stmt, err := s.current()
	if err != nil {
		return types.Result{}, err
	}
	return stmt.Run(ctx, params...)
}

func (s *hybridStatement) Get(ctx context.Context, params ...any) (types.Row, error) {
	stmt, err := s.current()
	if err != nil {
		return nil, err
	}
	return stmt.Get(ctx, params...)
}

func (s *hybridStatement) All(ctx context.Context, params ...any) ([]types.Row, error) {
	stmt, err := s.current()
	if err != nil {
		return nil, err
	}
	return stmt.All(ctx, params...)
}
