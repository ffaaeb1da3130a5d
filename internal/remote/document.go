package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/sqlparse"
	"github.com/keeperhq/stockpile/pkg/types"
)

const documentPath = "/mongodb"

// DocumentStore is the remote document backend. Statements are rendered
// into CRUD descriptors before the round trip; the execution server maps
// them onto native collection operations.
type DocumentStore struct {
	mu       sync.Mutex
	attached bool
	client   *client
	log      *zap.Logger
}

// NewDocument creates a detached document store.
func NewDocument(log *zap.Logger) *DocumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentStore{log: log}
}

// Mode reports the backend kind.
func (d *DocumentStore) Mode() types.Mode { return types.ModeDocument }

// Attach stores the transport configuration. No connection is opened;
// the store is stateless between calls. A missing base URL or missing
// credentials fails the attach so callers can fall back.
func (d *DocumentStore) Attach(config types.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.APIBaseURL == "" {
		return fmt.Errorf("remote attach: %w", types.ErrAPIBaseMissing)
	}
	client := newClient(config, d.log)
	if !client.authenticated() {
		return fmt.Errorf("remote attach: %w", types.ErrNotAuthenticated)
	}
	d.client = client
	d.attached = true
	return nil
}

// Detach clears the attached state.
func (d *DocumentStore) Detach(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = false
	return nil
}

// Prepare returns a statement bound to this store.
func (d *DocumentStore) Prepare(query string) types.Statement {
	return &docStatement{store: d, query: query}
}

type docStatement struct {
	store *DocumentStore
	query string
}

func (s *docStatement) render(params []any) (*sqlparse.DocRequest, error) {
	flat := types.FlattenParams(params)
	req, err := sqlparse.Document(s.query, flat)
	if err != nil {
		s.store.log.Warn("statement rendering failed", zap.String("query", s.query), zap.Error(err))
		return nil, err
	}
	prepareRequest(req)
	return req, nil
}

// Run executes a write descriptor. Insert descriptors get creation and
// update timestamps stamped when absent; update descriptors always get a
// fresh update timestamp.
func (s *docStatement) Run(ctx context.Context, params ...any) (types.Result, error) {
	if !s.store.attached {
		return types.Result{}, types.ErrStoreDetached
	}
	req, err := s.render(params)
	if err != nil {
		return types.Result{}, err
	}
	stampTimes(req)

	var data struct {
		LastInsertRowid string `json:"lastInsertRowid"`
		Changes         int64  `json:"changes"`
	}
	if err := s.store.client.post(ctx, documentPath, req, &data); err != nil {
		return types.Result{}, fmt.Errorf("remote run: %w", err)
	}
	return types.Result{LastInsertID: data.LastInsertRowid, Changes: data.Changes}, nil
}

// Get fetches a single document, degrading to (nil, nil) on timeout.
func (s *docStatement) Get(ctx context.Context, params ...any) (types.Row, error) {
	if !s.store.attached {
		return nil, types.ErrStoreDetached
	}
	req, err := s.render(params)
	if err != nil {
		return nil, err
	}
	if req.Method == sqlparse.MethodFind {
		req.Method = sqlparse.MethodFindOne
	}

	var row types.Row
	err = s.store.client.post(ctx, documentPath, req, &row)
	if isTimeout(err) {
		s.store.log.Warn("remote get timed out", zap.String("collection", req.Collection))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote get: %w", err)
	}
	if len(row) == 0 {
		return nil, nil
	}
	normalizeRow(row)
	return row, nil
}

// All fetches matching documents, degrading to empty on timeout.
func (s *docStatement) All(ctx context.Context, params ...any) ([]types.Row, error) {
	if !s.store.attached {
		return nil, types.ErrStoreDetached
	}
	req, err := s.render(params)
	if err != nil {
		return nil, err
	}

	var rows []types.Row
	err = s.store.client.post(ctx, documentPath, req, &rows)
	if isTimeout(err) {
		s.store.log.Warn("remote all timed out", zap.String("collection", req.Collection))
		return []types.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote all: %w", err)
	}
	if rows == nil {
		rows = []types.Row{}
	}
	for _, row := range rows {
		normalizeRow(row)
	}
	return rows, nil
}

// prepareRequest maps the relational key column onto the document key
// field. The value is forwarded as-is; the server converts hex strings to
// native object ids and rejects malformed ones.
func prepareRequest(req *sqlparse.DocRequest) {
	if req.Filter == nil {
		return
	}
	if v, ok := req.Filter["id"]; ok {
		delete(req.Filter, "id")
		req.Filter["_id"] = canonicalKey(v)
	}
}

// canonicalKey renders a key value the way the server expects: numbers
// and strings pass through as strings, everything else unchanged.
func canonicalKey(v any) any {
	switch k := v.(type) {
	case string:
		return k
	case int64:
		return fmt.Sprintf("%d", k)
	case int:
		return fmt.Sprintf("%d", k)
	case float64:
		return fmt.Sprintf("%.0f", k)
	default:
		return v
	}
}

// stampTimes adds bookkeeping timestamps the relational schema defaults
// provide but a document insert would otherwise lack.
func stampTimes(req *sqlparse.DocRequest) {
	now := time.Now().UTC().Format(time.RFC3339)
	switch req.Method {
	case sqlparse.MethodInsertOne:
		if _, ok := req.Data["created_at"]; !ok {
			req.Data["created_at"] = now
		}
		if _, ok := req.Data["updated_at"]; !ok {
			req.Data["updated_at"] = now
		}
	case sqlparse.MethodUpdateOne:
		req.Data["updated_at"] = now
	}
}

// normalizeRow reshapes an incoming document to the relational row shape:
// the native key surfaces as a string id, and timestamp objects flatten
// to their text form.
func normalizeRow(row types.Row) {
	if v, ok := row["_id"]; ok {
		delete(row, "_id")
		row["id"] = fmt.Sprintf("%v", v)
	}
	for key, v := range row {
		if m, ok := v.(map[string]any); ok {
			if t, ok := m["$date"]; ok {
				row[key] = fmt.Sprintf("%v", t)
			}
		}
	}
}
