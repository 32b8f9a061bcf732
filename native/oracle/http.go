package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource fetches quotes from a feed service speaking a small JSON
// protocol: GET <endpoint>?ref=<ref> returning price, confidence, and a unix
// timestamp. Prices travel as strings to preserve precision.
type HTTPSource struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPSource constructs a source against the given endpoint. When client
// is nil http.DefaultClient is used. The API key is optional and sent as the
// x-api-key header when present.
func NewHTTPSource(client HTTPDoer, endpoint, apiKey string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
	}
}

// Quote implements Source.
func (s *HTTPSource) Quote(ref string) (Quote, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Quote{}, fmt.Errorf("%w: empty reference", ErrUnknownFeed)
	}
	req, err := http.NewRequest(http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("ref", ref)
	req.URL.RawQuery = values.Encode()
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("oracle feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Price      string `json:"price"`
		Confidence string `json:"confidence"`
		Timestamp  int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("oracle feed: decode: %w", err)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(payload.Price))
	if err != nil || !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s price %q", ErrInvalidQuote, ref, payload.Price)
	}
	conf := decimal.Zero
	if trimmed := strings.TrimSpace(payload.Confidence); trimmed != "" {
		conf, err = decimal.NewFromString(trimmed)
		if err != nil || conf.IsNegative() {
			return Quote{}, fmt.Errorf("%w: %s confidence %q", ErrInvalidQuote, ref, payload.Confidence)
		}
	}
	return Quote{Price: price, Confidence: conf, Timestamp: time.Unix(payload.Timestamp, 0)}, nil
}
