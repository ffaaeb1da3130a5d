// Tests for the remote document backend.
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeperhq/stockpile/internal/sqlparse"
	"github.com/keeperhq/stockpile/pkg/types"
)

func attachDocument(t *testing.T, url string) *DocumentStore {
	t.Helper()
	d := NewDocument(nil)
	cfg := types.Config{
		Mode:       types.ModeDocument,
		APIBaseURL: url,
		Username:   "admin",
		Password:   "secret",
	}
	require.NoError(t, d.Attach(cfg))
	return d
}

func TestDocumentStore_InsertStampsTimestamps(t *testing.T) {
	var captured sqlparse.DocRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mongodb", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"lastInsertRowid": "64f1a2b3c4d5e6f708192a3b", "changes": 1},
		})
	}))
	defer srv.Close()

	d := attachDocument(t, srv.URL)
	defer d.Detach(context.Background())

	result, err := d.Prepare("INSERT INTO companies (name, description) VALUES (?, ?)").
		Run(context.Background(), "Acme", "dist")
	require.NoError(t, err)

	assert.Equal(t, sqlparse.MethodInsertOne, captured.Method)
	assert.Equal(t, "companies", captured.Collection)
	assert.Equal(t, "Acme", captured.Data["name"])
	assert.NotEmpty(t, captured.Data["created_at"], "insert should stamp created_at")
	assert.NotEmpty(t, captured.Data["updated_at"], "insert should stamp updated_at")
	assert.Equal(t, "64f1a2b3c4d5e6f708192a3b", result.LastInsertID)
}

func TestDocumentStore_UpdateMapsKeyFilter(t *testing.T) {
	var captured sqlparse.DocRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"changes": 1},
		})
	}))
	defer srv.Close()

	d := attachDocument(t, srv.URL)
	defer d.Detach(context.Background())

	_, err := d.Prepare("UPDATE products SET name = ? WHERE id = ?").
		Run(context.Background(), "Widget", "64f1a2b3c4d5e6f708192a3b")
	require.NoError(t, err)

	assert.Equal(t, sqlparse.MethodUpdateOne, captured.Method)
	assert.NotContains(t, captured.Filter, "id")
	assert.Equal(t, "64f1a2b3c4d5e6f708192a3b", captured.Filter["_id"])
	assert.Equal(t, "Widget", captured.Data["name"])
	assert.NotEmpty(t, captured.Data["updated_at"], "update should stamp updated_at")
}

func TestDocumentStore_GetUsesFindOne(t *testing.T) {
	var captured sqlparse.DocRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"_id": "64f1a2b3c4d5e6f708192a3b", "name": "Acme"},
		})
	}))
	defer srv.Close()

	d := attachDocument(t, srv.URL)
	defer d.Detach(context.Background())

	row, err := d.Prepare("SELECT * FROM companies WHERE name = ?").Get(context.Background(), "Acme")
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, sqlparse.MethodFindOne, captured.Method)
	assert.NotContains(t, row, "_id")
	assert.Equal(t, "64f1a2b3c4d5e6f708192a3b", row["id"])
}

func TestDocumentStore_SortTravelsUnderOptions(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
	}))
	defer srv.Close()

	d := attachDocument(t, srv.URL)
	defer d.Detach(context.Background())

	_, err := d.Prepare("SELECT * FROM products WHERE company_id = ? ORDER BY name DESC").
		All(context.Background(), "5")
	require.NoError(t, err)

	assert.NotContains(t, body, "sort")
	opts, ok := body["options"].(map[string]any)
	require.True(t, ok, "options object missing from wire body")
	sort, ok := opts["sort"].(map[string]any)
	require.True(t, ok, "sort descriptor missing from options")
	assert.Equal(t, float64(-1), sort["name"])
}

func TestDocumentStore_ReadsDegradeOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	d := attachDocument(t, srv.URL)
	defer d.Detach(context.Background())
	ctx := context.Background()

	row, err := d.Prepare("SELECT * FROM companies WHERE id = ?").Get(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err := d.Prepare("SELECT * FROM companies").All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDocumentStore_RejectsDateComparison(t *testing.T) {
	d := attachDocument(t, "http://localhost:0")
	defer d.Detach(context.Background())

	_, err := d.Prepare("SELECT * FROM sales WHERE date(sale_date) = date(?)").
		All(context.Background(), "2026-08-30")
	assert.ErrorIs(t, err, types.ErrUnsupportedQuery)
}
