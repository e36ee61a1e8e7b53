package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures a USD-denominated price for a single feed along with
// the timestamp reported by the upstream oracle and the oracle identifier.
type PriceQuote struct {
	Price     *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Rat).Set(q.Price)
	}
	return clone
}

// PriceString renders the price using the supplied precision.
func (q PriceQuote) PriceString(precision int) string {
	if q.Price == nil {
		return ""
	}
	if precision < 0 {
		precision = 18
	}
	return q.Price.FloatString(precision)
}

// PriceOracle resolves the current price for a named feed. Feed identifiers
// are opaque strings configured per lending tier (e.g. "SOL/USD").
type PriceOracle interface {
	GetPrice(feedID string) (PriceQuote, error)
}

var (
	// ErrNoFreshQuote indicates that no oracle could supply a quote within
	// the configured freshness window.
	ErrNoFreshQuote = errors.New("oracle: no fresh quote available")
	// ErrFeedNotFound indicates the feed identifier is unknown to every
	// registered oracle.
	ErrFeedNotFound = errors.New("oracle: feed not found")
)

// Aggregator consults a list of registered oracles in priority order until a
// fresh quote is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	oracles  map[string]PriceOracle
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority and
// freshness window. When priority is nil a zero-length slice is initialised
// so Register can safely append identifiers without additional checks.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	prio := append([]string{}, priority...)
	return &Aggregator{
		priority: prio,
		oracles:  make(map[string]PriceOracle),
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// Register adds or replaces an oracle under the supplied identifier.
// Identifiers are stored in lowercase so lookups remain consistent
// regardless of configuration casing.
func (a *Aggregator) Register(name string, oracle PriceOracle) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.oracles[trimmed] = oracle
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// GetPrice fetches a price from the configured oracles respecting the
// priority ordering. The aggregator enforces the freshness window and
// returns a defensive copy of the upstream quote.
func (a *Aggregator) GetPrice(feedID string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn
	a.mu.RUnlock()

	feed := NormalizeFeedID(feedID)
	if feed == "" {
		return PriceQuote{}, fmt.Errorf("oracle: feed id required")
	}

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		oracle := a.oracles[strings.ToLower(name)]
		a.mu.RUnlock()
		if oracle == nil {
			continue
		}
		quote, err := oracle.GetPrice(feed)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrFeedNotFound
	}
	return PriceQuote{}, lastErr
}

// ManualOracle provides an in-memory oracle implementation used for tests
// and manual overrides during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote)}
}

// SetDecimal records the supplied decimal price for the feed using the
// provided timestamp.
func (m *ManualOracle) SetDecimal(feedID, price string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return fmt.Errorf("manual oracle: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual oracle: invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual oracle: price must be positive")
	}
	m.Set(feedID, rat, ts)
	return nil
}

// Set stores the provided rational price for the feed.
func (m *ManualOracle) Set(feedID string, price *big.Rat, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	feed := NormalizeFeedID(feedID)
	if feed == "" {
		return
	}
	m.mu.Lock()
	m.quotes[feed] = PriceQuote{Price: new(big.Rat).Set(price), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// GetPrice retrieves the stored price for the feed.
func (m *ManualOracle) GetPrice(feedID string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	feed := NormalizeFeedID(feedID)
	m.mu.RLock()
	stored, ok := m.quotes[feed]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feed)
	}
	return stored.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOracle fetches price data from a feed endpoint that answers with a
// JSON body of the shape {"price": "150.25", "timestamp": 1700000000}. It
// covers the hosted price services the settlement authority mirrors the
// upstream Pyth feeds through.
type HTTPOracle struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPOracle constructs an HTTP oracle adapter. When the client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPOracle(client HTTPDoer, endpoint, apiKey string) *HTTPOracle {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOracle{client: client, endpoint: strings.TrimSpace(endpoint), apiKey: strings.TrimSpace(apiKey)}
}

func (o *HTTPOracle) GetPrice(feedID string) (PriceQuote, error) {
	if o == nil || o.endpoint == "" {
		return PriceQuote{}, fmt.Errorf("http oracle not configured")
	}
	feed := NormalizeFeedID(feedID)
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("feed", feed)
	req.URL.RawQuery = values.Encode()
	if o.apiKey != "" {
		req.Header.Set("x-api-key", o.apiKey)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("http oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("http oracle: decode: %w", err)
	}
	price := strings.TrimSpace(payload.Price)
	if price == "" {
		return PriceQuote{}, fmt.Errorf("http oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(price)
	if !ok || rat.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("http oracle: invalid price %q", payload.Price)
	}
	return PriceQuote{Price: rat, Timestamp: time.Unix(payload.Timestamp, 0), Source: "http"}, nil
}

// NormalizeFeedID canonicalises a feed identifier for map lookups.
func NormalizeFeedID(feedID string) string {
	return strings.ToUpper(strings.TrimSpace(feedID))
}

// Config controls oracle behaviour for the lending daemon.
type Config struct {
	MaxQuoteAgeSeconds int64    `toml:"MaxQuoteAgeSeconds"`
	Priority           []string `toml:"Priority"`
	HTTPEndpoint       string   `toml:"HTTPEndpoint"`
	HTTPAPIKeyEnv      string   `toml:"HTTPAPIKeyEnv"`
}

// Normalise applies defaults to the configuration values.
func (c Config) Normalise() Config {
	cfg := Config{
		MaxQuoteAgeSeconds: c.MaxQuoteAgeSeconds,
		Priority:           append([]string{}, c.Priority...),
		HTTPEndpoint:       strings.TrimSpace(c.HTTPEndpoint),
		HTTPAPIKeyEnv:      strings.TrimSpace(c.HTTPAPIKeyEnv),
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 120
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = []string{"manual"}
	}
	for i := range cfg.Priority {
		cfg.Priority[i] = strings.ToLower(strings.TrimSpace(cfg.Priority[i]))
	}
	return cfg
}

// MaxQuoteAge returns the configured freshness window as a duration.
func (c Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}
