package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

const httpSourceName = "market_data_api"

// HTTPMarketData reads signals, performance rows and weekly price changes
// from the market-data API
type HTTPMarketData struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// NewHTTPMarketData creates an API-backed source
func NewHTTPMarketData(httpClient *RateLimitedHTTPClient, baseURL, apiKey string, logger *logrus.Logger) *HTTPMarketData {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &HTTPMarketData{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.WithField("component", "market_data"),
	}
}

type signalsResponse struct {
	WeekOpenUTC string       `json:"week_open_utc"`
	Legs        []models.Leg `json:"legs"`
}

type performanceResponse struct {
	WeekOpenUTC string                     `json:"week_open_utc"`
	Rows        []models.WeeklyPerformance `json:"rows"`
}

type pricesResponse struct {
	WeekOpenUTC string             `json:"week_open_utc"`
	Changes     map[string]float64 `json:"changes"`
}

// GetSignals fetches legs for a week
func (h *HTTPMarketData) GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error) {
	params := url.Values{}
	params.Set("week_open_utc", weeks.Format(weekOpen))
	if len(assetClasses) > 0 {
		classes := make([]string, len(assetClasses))
		for i, ac := range assetClasses {
			classes[i] = string(ac)
		}
		params.Set("asset_classes", strings.Join(classes, ","))
	}
	if len(symbols) > 0 {
		params.Set("symbols", strings.Join(symbols, ","))
	}

	var out signalsResponse
	if err := h.getJSON(ctx, "/v1/signals", params, &out); err != nil {
		return nil, err
	}
	return out.Legs, nil
}

// GetWeeklyReturns fetches realized performance rows for a week
func (h *HTTPMarketData) GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error) {
	params := url.Values{}
	params.Set("week_open_utc", weeks.Format(weekOpen))

	var out performanceResponse
	if err := h.getJSON(ctx, "/v1/performance", params, &out); err != nil {
		return nil, err
	}
	for i := range out.Rows {
		if out.Rows[i].WeekOpenUTC.IsZero() {
			out.Rows[i].WeekOpenUTC = weekOpen
		}
	}
	return weeks.Dedupe(out.Rows), nil
}

// GetWeeklyChanges fetches percent moves for symbols over a week
func (h *HTTPMarketData) GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	params := url.Values{}
	params.Set("week_open_utc", weeks.Format(weekOpen))
	params.Set("symbols", strings.Join(symbols, ","))

	var out pricesResponse
	if err := h.getJSON(ctx, "/v1/prices", params, &out); err != nil {
		return nil, err
	}
	if out.Changes == nil {
		out.Changes = map[string]float64{}
	}
	return out.Changes, nil
}

func (h *HTTPMarketData) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	endpoint := h.baseURL + path + "?" + params.Encode()
	headers := map[string]string{"Accept": "application/json"}
	if h.apiKey != "" {
		headers["X-API-Key"] = h.apiKey
	}

	start := time.Now()
	resp, err := h.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return NewDataSourceError(httpSourceName, ErrCodeNetworkError, "request failed", fmt.Errorf("%w: %v", ErrNetworkError, err))
	}
	defer resp.Body.Close()

	h.logger.WithFields(logrus.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Market data request completed")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return NewDataSourceError(httpSourceName, ErrCodeNotFound, path, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewDataSourceError(httpSourceName, ErrCodeAuthenticationFailed, resp.Status, ErrAuthenticationFailed)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewDataSourceError(httpSourceName, ErrCodeRateLimitExceeded, resp.Status, ErrRateLimitExceeded)
	case resp.StatusCode >= 500:
		return NewDataSourceError(httpSourceName, ErrCodeServerError, resp.Status, ErrServerError)
	case resp.StatusCode >= 400:
		return NewDataSourceError(httpSourceName, ErrCodeUnknown, resp.Status, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return NewDataSourceError(httpSourceName, ErrCodeInvalidData, "decode response", fmt.Errorf("%w: %v", ErrInvalidData, err))
	}
	return nil
}
