// Package remote implements the two HTTP-backed storage backends: the
// relational client speaking translated SQL and the document client
// speaking CRUD descriptors. Both present the uniform Store contract,
// require the static Basic-Auth credential before any round trip, and
// degrade reads to "no data" on timeout-class failures.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/pkg/types"
)

// requestTimeout bounds every remote round trip. There is no retry
// budget; callers see timeouts as "no data" on reads and as errors on
// writes.
const requestTimeout = 30 * time.Second

// errTimeout classifies gateway/request-timeout responses and transport
// timeouts. Reads degrade on it; writes surface it.
var errTimeout = errors.New("remote request timed out")

// envelope is the wire response: {success, data} or an error body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// client is the transport shared by both remote backends.
type client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *zap.Logger
}

func newClient(config types.Config, log *zap.Logger) *client {
	return &client{
		baseURL:  config.APIBaseURL,
		username: config.Username,
		password: config.Password,
		http:     &http.Client{Timeout: requestTimeout},
		log:      log,
	}
}

// authenticated reports whether a credential pair is configured. Calls
// without one fail immediately, before any network round trip.
func (c *client) authenticated() bool {
	return c.username != "" && c.password != ""
}

// post sends body as JSON to baseURL+path and decodes the data field of
// the response envelope into out. Returns errTimeout (wrapped) for
// timeout-class failures and a descriptive error otherwise.
func (c *client) post(ctx context.Context, path string, body any, out any) error {
	if !c.authenticated() {
		return types.ErrNotAuthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTransportTimeout(err) {
			return fmt.Errorf("%w: %v", errTimeout, err)
		}
		return fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return fmt.Errorf("%w: HTTP %d", errTimeout, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", types.ErrNotAuthenticated, errorMessage(raw, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(errorMessage(raw, resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return fmt.Sprintf("database operation failed: HTTP %d", status)
}

func isTransportTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isTimeout reports whether err is a timeout-class failure eligible for
// read degradation.
func isTimeout(err error) bool {
	return errors.Is(err, errTimeout)
}
