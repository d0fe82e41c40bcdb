package datasources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// lower48Series is the EIA weekly working gas in storage series for the Lower 48.
const lower48Series = "NW2_EPG0_SWO_R48_BCF"

// ErrMissingAPIKey is returned when a source needs a key that is not configured.
var ErrMissingAPIKey = errors.New("API key not provided")

type eiaResponse struct {
	Response struct {
		Data []eiaPoint `json:"data"`
	} `json:"response"`
}

type eiaPoint struct {
	Period string          `json:"period"`
	Value  json.RawMessage `json:"value"`
}

// StoragePoint is one weekly storage observation in Bcf.
type StoragePoint struct {
	Period time.Time
	Value  float64
}

// InventoryFetcher derives the inventory signal from EIA weekly storage:
// storage below its yearly mean is bullish.
type InventoryFetcher struct {
	client *resty.Client
	url    string
	apiKey string
	now    func() time.Time
}

func NewInventoryFetcher(url, apiKey string, timeout time.Duration) *InventoryFetcher {
	return &InventoryFetcher{
		client: newClient(timeout, ""),
		url:    url,
		apiKey: apiKey,
		now:    time.Now,
	}
}

func (f *InventoryFetcher) Name() string { return "inventory" }

func (f *InventoryFetcher) Signal(ctx context.Context) (float64, error) {
	points, err := f.Storage(ctx)
	if err != nil {
		return 0, err
	}
	if len(points) < 2 {
		log.Warn().Int("points", len(points)).Msg("Insufficient storage data")
		return 0, nil
	}

	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))
	if mean == 0 {
		return 0, fmt.Errorf("storage mean is zero over %d points", len(points))
	}
	current := points[len(points)-1].Value
	signal := (mean - current) / mean

	log.Info().
		Float64("current_bcf", current).
		Float64("historical_avg_bcf", mean).
		Float64("signal", signal).
		Msg("Inventory signal")
	return signal, nil
}

// Storage returns the last 365 days of observations, oldest first.
func (f *InventoryFetcher) Storage(ctx context.Context) ([]StoragePoint, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("EIA: %w", ErrMissingAPIKey)
	}

	end := f.now().UTC()
	start := end.AddDate(0, 0, -365)
	log.Info().Str("start", start.Format("2006-01-02")).Str("end", end.Format("2006-01-02")).Msg("Fetching EIA storage data")

	var resp eiaResponse
	err := getJSON(ctx, f.client, f.url, map[string]string{
		"api_key":            f.apiKey,
		"frequency":          "weekly",
		"data[]":             "value",
		"facets[series][]":   lower48Series,
		"start":              start.Format("2006-01-02"),
		"end":                end.Format("2006-01-02"),
		"sort[0][column]":    "period",
		"sort[0][direction]": "asc",
		"length":             "1000",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("EIA: %w", err)
	}

	points := make([]StoragePoint, 0, len(resp.Response.Data))
	for _, raw := range resp.Response.Data {
		period, ok := parsePeriod(raw.Period)
		if !ok || period.Before(start.Truncate(24*time.Hour)) {
			continue
		}
		value, ok := parseValue(raw.Value)
		if !ok {
			continue
		}
		points = append(points, StoragePoint{Period: period, Value: value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period.Before(points[j].Period) })

	log.Info().Int("raw", len(resp.Response.Data)).Int("valid", len(points)).Msg("EIA storage data fetched")
	return points, nil
}

func parsePeriod(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// parseValue accepts both numeric and quoted-numeric JSON values.
func parseValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
