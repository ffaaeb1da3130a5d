package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/sqlparse"
	"github.com/keeperhq/stockpile/pkg/types"
)

// Relational endpoint paths on the execution server.
const (
	postgresPath = "/postgres"
	setupPath    = "/setup"
)

// sqlRequest is the relational wire body: {method, query, params}.
type sqlRequest struct {
	Method string `json:"method"`
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

// runData is the relational response for run: the generated key (from the
// RETURNING row, if the statement was an INSERT) and the row count.
type runData struct {
	LastInsertRowid json.Number `json:"lastInsertRowid"`
	Changes         int64       `json:"changes"`
}

// PostgresStore is the stateless remote relational backend. Every call is
// a fresh round trip; there is no local caching.
type PostgresStore struct {
	mu       sync.Mutex
	attached bool
	client   *client
	log      *zap.Logger
}

// NewPostgres creates a detached relational store.
func NewPostgres(log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{log: log}
}

// Mode reports the backend kind.
func (p *PostgresStore) Mode() types.Mode { return types.ModePostgres }

// Attach stores the transport configuration and asks the server to ensure
// the schema exists. A missing base URL or missing credentials fails the
// attach so callers can fall back. The setup call is idempotent and best
// effort; a failure is logged so a cold deployment can be fixed manually.
func (p *PostgresStore) Attach(config types.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.APIBaseURL == "" {
		return fmt.Errorf("remote attach: %w", types.ErrAPIBaseMissing)
	}
	client := newClient(config, p.log)
	if !client.authenticated() {
		return fmt.Errorf("remote attach: %w", types.ErrNotAuthenticated)
	}

	p.client = client
	p.attached = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.post(ctx, setupPath, struct{}{}, nil); err != nil {
		p.log.Warn("schema setup check failed", zap.Error(err))
	}
	return nil
}

// Detach releases nothing but the attached state; the store is stateless.
func (p *PostgresStore) Detach(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = false
	return nil
}

// Prepare returns a statement bound to this store.
func (p *PostgresStore) Prepare(query string) types.Statement {
	return &pgStatement{store: p, query: query}
}

type pgStatement struct {
	store *PostgresStore
	query string
}

func (s *pgStatement) translate(params []any) (string, []any, error) {
	flat := types.FlattenParams(params)
	translated, err := sqlparse.Postgres(s.query, flat)
	if err != nil {
		s.store.log.Warn("query translation failed", zap.String("query", s.query), zap.Error(err))
		return "", nil, err
	}
	return translated, flat, nil
}

// Run executes a write. Failed writes always surface as errors, timeouts
// included: the caller must never report false success.
func (s *pgStatement) Run(ctx context.Context, params ...any) (types.Result, error) {
	if !s.store.attached {
		return types.Result{}, types.ErrStoreDetached
	}
	translated, flat, err := s.translate(params)
	if err != nil {
		return types.Result{}, err
	}

	var data runData
	if err := s.store.client.post(ctx, postgresPath, sqlRequest{Method: "run", Query: translated, Params: flat}, &data); err != nil {
		return types.Result{}, fmt.Errorf("remote run: %w", err)
	}

	result := types.Result{Changes: data.Changes}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s.query)), "INSERT") {
		result.LastInsertID = data.LastInsertRowid.String()
	}
	return result, nil
}

// Get returns one row, degrading to (nil, nil) on timeout: the caller
// cannot distinguish "timed out" from "no data" without a retry budget
// this system does not implement.
func (s *pgStatement) Get(ctx context.Context, params ...any) (types.Row, error) {
	if !s.store.attached {
		return nil, types.ErrStoreDetached
	}
	translated, flat, err := s.translate(params)
	if err != nil {
		return nil, err
	}

	var row types.Row
	err = s.store.client.post(ctx, postgresPath, sqlRequest{Method: "get", Query: translated, Params: flat}, &row)
	if isTimeout(err) {
		s.store.log.Warn("remote get timed out", zap.String("query", translated))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote get: %w", err)
	}
	if len(row) == 0 {
		return nil, nil
	}
	return row, nil
}

// All returns matching rows, degrading to empty on timeout.
func (s *pgStatement) All(ctx context.Context, params ...any) ([]types.Row, error) {
	if !s.store.attached {
		return nil, types.ErrStoreDetached
	}
	translated, flat, err := s.translate(params)
	if err != nil {
		return nil, err
	}

	var rows []types.Row
	err = s.store.client.post(ctx, postgresPath, sqlRequest{Method: "all", Query: translated, Params: flat}, &rows)
	if isTimeout(err) {
		s.store.log.Warn("remote all timed out", zap.String("query", translated))
		return []types.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote all: %w", err)
	}
	if rows == nil {
		rows = []types.Row{}
	}
	return rows, nil
}
