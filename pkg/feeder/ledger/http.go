package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keystore"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/version"
)

// Paths served by the ledger API.
const (
	CommandsPath = "/v1/ledger/commands"
	AccountsPath = "/v1/ledger/accounts/"
)

// SubmitRequest is the body of a command submission.
type SubmitRequest struct {
	Command   string `json:"command"`
	Signature string `json:"signature"`
}

// Decode returns the raw command and signature bytes.
func (r SubmitRequest) Decode() (encoded, sig []byte, err error) {
	if encoded, err = hexutil.Decode(r.Command); err != nil {
		return nil, nil, fmt.Errorf("%w: command: %v", ErrInvalidEncoding, err)
	}
	if sig, err = hexutil.Decode(r.Signature); err != nil {
		return nil, nil, fmt.Errorf("%w: signature: %v", ErrInvalidEncoding, err)
	}
	return encoded, sig, nil
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Kind  protocol.Kind `json:"kind,omitempty"`
	Error string        `json:"error"`
}

// AccountResponse carries a serialized account.
type AccountResponse struct {
	Address common.Address `json:"address"`
	Data    string         `json:"data"`
}

// HTTPConfig configures the remote ledger client.
type HTTPConfig struct {
	Endpoints   []string
	Timeout     time.Duration
	MaxAttempts int           // 0 = one attempt per endpoint
	BaseDelay   time.Duration // backoff before retrying, doubled per attempt
}

// HTTPClient talks to one or more ledger API endpoints and fails over
// between them on transport errors.
type HTTPClient struct {
	logger    *logging.Logger
	http      *resty.Client
	endpoints []string
	current   int
	mu        sync.RWMutex

	maxAttempts int
	baseDelay   time.Duration
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg.Endpoints.
func NewHTTPClient(cfg HTTPConfig, logger *logging.Logger) (*HTTPClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	endpoints := make([]string, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		endpoints[i] = strings.TrimRight(ep, "/")
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", version.AgentString()).
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		logger:      logger.With("component", "ledger_client"),
		http:        client,
		endpoints:   endpoints,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}, nil
}

// Failover rotates to the next endpoint.
func (c *HTTPClient) Failover() {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current
	c.current = (c.current + 1) % len(c.endpoints)
	c.logger.Warn("Failing over to next ledger endpoint",
		"from", c.endpoints[old],
		"to", c.endpoints[c.current],
	)
}

// CurrentEndpoint returns the currently active endpoint.
func (c *HTTPClient) CurrentEndpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoints[c.current]
}

// Submit signs encoded and posts it to the ledger.
func (c *HTTPClient) Submit(ctx context.Context, encoded []byte, signer keystore.Signer) (Receipt, error) {
	sig, err := Sign(encoded, signer)
	if err != nil {
		return Receipt{}, err
	}
	body := SubmitRequest{Command: hexutil.Encode(encoded), Signature: hexutil.Encode(sig)}

	return withFailover(ctx, c, func(endpoint string) (Receipt, error) {
		var receipt Receipt
		var failure ErrorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&receipt).
			SetError(&failure).
			Post(endpoint + CommandsPath)
		if err != nil {
			return Receipt{}, protocol.Transport(err)
		}
		if resp.IsError() {
			return Receipt{}, responseError(resp, failure)
		}
		return receipt, nil
	})
}

// GetAccount fetches the serialized account at addr.
func (c *HTTPClient) GetAccount(ctx context.Context, addr common.Address) ([]byte, error) {
	return withFailover(ctx, c, func(endpoint string) ([]byte, error) {
		var out AccountResponse
		var failure ErrorResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&failure).
			Get(endpoint + AccountsPath + addr.Hex())
		if err != nil {
			return nil, protocol.Transport(err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr.Hex())
		}
		if resp.IsError() {
			return nil, responseError(resp, failure)
		}
		b, err := hexutil.Decode(out.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: account data: %v", ErrInvalidEncoding, err)
		}
		return b, nil
	})
}

// responseError turns a rejected response into a classified error. A kind
// the client does not know, or none at all, is a transport failure.
func responseError(resp *resty.Response, failure ErrorResponse) error {
	if failure.Kind.Known() {
		return protocol.NewError(failure.Kind, "%s", failure.Error)
	}
	msg := failure.Error
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return protocol.Transport(fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), msg))
}

// withFailover runs call against the current endpoint. Transport failures
// rotate to the next endpoint after an exponential backoff; any other error
// is returned immediately.
func withFailover[T any](ctx context.Context, c *HTTPClient, call func(endpoint string) (T, error)) (T, error) {
	var zero T
	maxAttempts := c.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(c.endpoints)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		endpoint := c.CurrentEndpoint()
		resp, err := call(endpoint)
		if err == nil {
			return resp, nil
		}
		if protocol.KindOf(err) != protocol.KindTransport || errors.Is(err, ErrAccountNotFound) {
			return zero, err
		}
		lastErr = err

		c.logger.Debug("Ledger call failed",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"error", err,
		)
		if attempt == maxAttempts-1 {
			break
		}
		if len(c.endpoints) > 1 {
			c.Failover()
		}

		delay := c.baseDelay * time.Duration(1<<min(attempt, 4))
		select {
		case <-ctx.Done():
			return zero, protocol.Transport(ctx.Err())
		case <-time.After(delay):
		}
	}

	c.logger.Error("Ledger call failed on every endpoint", "attempts", maxAttempts, "error", lastErr)
	return zero, protocol.Transport(fmt.Errorf("%w: %d attempts: %v", ErrAllAttemptsFailed, maxAttempts, lastErr))
}
