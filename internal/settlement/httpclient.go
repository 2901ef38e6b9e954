package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	"soulbind/pkg/platform/circuit"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbind_settlement_transfers_total",
		Help: "Settlement transfer attempts by outcome.",
	}, []string{"outcome"})

	transferSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "soulbind_settlement_transfer_seconds",
		Help:    "Settlement transfer round-trip latency.",
		Buckets: prometheus.DefBuckets,
	})
)

const (
	defaultTimeout       = 5 * time.Second
	defaultProbeInterval = 30 * time.Second

	// maxReasonBytes bounds how much of a decline body we read back.
	maxReasonBytes = 4 << 10
)

// HTTPClient posts transfers to a settlement service over HTTP. Transport
// failures and 5xx responses count against the circuit breaker; a decline
// is a healthy answer and does not.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	probeInterval time.Duration
	probeMu       sync.Mutex
	lastProbe     time.Time
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithBreaker installs a circuit breaker. Without one every call goes out.
func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(c *HTTPClient) {
		c.breaker = b
	}
}

// WithClientLogger sets the logger for circuit transitions.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProbeInterval sets how often an open circuit lets a probe through.
// Zero probes on every call.
func WithProbeInterval(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.probeInterval = d
	}
}

// NewHTTPClient creates a client posting to baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: defaultTimeout},
		logger:        slog.New(slog.DiscardHandler),
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type transferRequest struct {
	Amount uint64 `json:"amount"`
	Payer  string `json:"payer"`
	Payee  string `json:"payee"`
}

// Transfer posts the fee transfer and blocks until the service answers.
// While the circuit is open it fails fast with CodeUnavailable, letting one
// probe through per probe interval so the circuit can close again. An open
// circuit never lets a transfer count as settled.
func (c *HTTPClient) Transfer(ctx context.Context, amount uint64, payer, payee domain.Principal) error {
	if !c.allowRequest() {
		transfersTotal.WithLabelValues("circuit_open").Inc()
		return dErrors.New(dErrors.CodeUnavailable, "settlement circuit open")
	}

	body, err := json.Marshal(transferRequest{
		Amount: amount,
		Payer:  payer.String(),
		Payee:  payee.String(),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode transfer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build transfer request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(ctx)
		transfersTotal.WithLabelValues("error").Inc()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "settlement request failed")
	}
	defer resp.Body.Close()
	transferSeconds.Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.recordSuccess(ctx)
		transfersTotal.WithLabelValues("ok").Inc()
		return nil
	case resp.StatusCode >= 500:
		c.recordFailure(ctx)
		transfersTotal.WithLabelValues("error").Inc()
		return dErrors.Newf(dErrors.CodeUnavailable, "settlement service failed: status %d", resp.StatusCode)
	default:
		// The service answered and said no. Its health is fine.
		c.recordSuccess(ctx)
		transfersTotal.WithLabelValues("declined").Inc()
		return dErrors.Newf(dErrors.CodeInvalidInput, "settlement declined: %s", declineReason(resp))
	}
}

// allowRequest reports whether this call may go out. A closed circuit
// always allows; an open one allows one probe per probe interval.
func (c *HTTPClient) allowRequest() bool {
	if c.breaker == nil || !c.breaker.IsOpen() {
		return true
	}
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	if time.Since(c.lastProbe) < c.probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *HTTPClient) recordFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	_, change := c.breaker.RecordFailure()

	// Restart the fail-fast window from the failure that kept it open.
	c.probeMu.Lock()
	c.lastProbe = time.Now()
	c.probeMu.Unlock()

	if change.Opened {
		c.logger.WarnContext(ctx, "settlement circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *HTTPClient) recordSuccess(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "settlement circuit closed", "breaker", c.breaker.Name())
	}
}

// declineReason pulls the error field out of a decline body, falling back
// to the HTTP status text.
func declineReason(resp *http.Response) string {
	var decline struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReasonBytes))
	if err == nil && json.Unmarshal(raw, &decline) == nil && decline.Error != "" {
		return decline.Error
	}
	return http.StatusText(resp.StatusCode)
}
