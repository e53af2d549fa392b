// Package sidra reads the IPCA index series from IBGE's SIDRA API.
package sidra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"go.uber.org/zap"
)

// row is one element of a SIDRA values response. The first element of every response is
// a header whose fields carry column labels instead of values.
type row struct {
	Value        cell `json:"V"`
	VariableCode cell `json:"D2C"`
	PeriodCode   cell `json:"D3C"`
}

// cell holds the text of a SIDRA field. Cells are normally strings; a number keeps its
// literal text and null becomes empty, so an odd row is left for the normalizer to drop.
type cell string

func (c *cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = cell(s)
	default:
		*c = cell(data)
	}
	return nil
}

// Decode reads a SIDRA values document and keeps the rows of the given variable.
func Decode(r io.Reader, variable string) ([]series.RawPoint, error) {
	var rows []row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode SIDRA response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	points := make([]series.RawPoint, 0, len(rows))
	for _, rw := range rows[1:] {
		if strings.TrimSpace(string(rw.VariableCode)) != variable {
			continue
		}
		points = append(points, series.RawPoint{Code: string(rw.PeriodCode), Value: string(rw.Value)})
	}
	return points, nil
}

// Client fetches the series over HTTP.
type Client struct {
	url      string
	variable string
	client   *http.Client
	logger   *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithVariable selects the SIDRA variable code to keep.
func WithVariable(variable string) Option {
	return func(cl *Client) {
		if v := strings.TrimSpace(variable); v != "" {
			cl.variable = v
		}
	}
}

// NewClient builds a SIDRA client. An empty url selects the public IPCA query.
func NewClient(logger *zap.Logger, url string, timeout time.Duration, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(url) == "" {
		url = constants.DefaultSidraURL
	}
	if timeout <= 0 {
		timeout = constants.DefaultProviderTimeout
	}

	c := &Client{
		url:      url,
		variable: constants.DefaultSidraVariable,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string { return constants.ProviderSidra }

// FetchRawSeries implements provider.Provider.
func (c *Client) FetchRawSeries(ctx context.Context) ([]series.RawPoint, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: c.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: c.Name(), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.UnavailableError{
			Provider: c.Name(),
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	points, err := Decode(resp.Body, c.variable)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: c.Name(), Err: err}
	}

	c.logger.Debug("fetched SIDRA series",
		zap.String("op", "sidra.FetchRawSeries"),
		zap.Int("rows", len(points)),
		zap.Duration("duration", time.Since(start)),
	)
	return points, nil
}

// File reads a SIDRA document saved on disk, for offline use.
type File struct {
	path     string
	variable string
}

// NewFile returns a provider reading path. An empty variable selects the IPCA index.
func NewFile(path, variable string) *File {
	if strings.TrimSpace(variable) == "" {
		variable = constants.DefaultSidraVariable
	}
	return &File{path: path, variable: variable}
}

// Name implements provider.Provider.
func (f *File) Name() string { return constants.ProviderFile }

// FetchRawSeries implements provider.Provider.
func (f *File) FetchRawSeries(ctx context.Context) ([]series.RawPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, &provider.UnavailableError{Provider: f.Name(), Err: err}
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: f.Name(), Err: err}
	}
	defer func() {
		_ = file.Close()
	}()

	points, err := Decode(file, f.variable)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: f.Name(), Err: err}
	}
	return points, nil
}
