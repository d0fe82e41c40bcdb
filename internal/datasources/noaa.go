package datasources

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var stormKeywords = []string{"storm", "winter", "blizzard", "ice", "freeze", "hurricane", "tornado", "severe"}

// Alert is the relevant subset of a NOAA alert's properties.
type Alert struct {
	Event     string `json:"event"`
	Severity  string `json:"severity"`
	Urgency   string `json:"urgency"`
	AreaDesc  string `json:"areaDesc"`
	Effective string `json:"effective"`
	Expires   string `json:"expires"`
}

type alertsResponse struct {
	Features []struct {
		Properties Alert `json:"properties"`
	} `json:"features"`
}

// StormFetcher derives the storm signal from active NOAA weather alerts.
type StormFetcher struct {
	client *resty.Client
	url    string
}

func NewStormFetcher(url, userAgent string, timeout time.Duration) *StormFetcher {
	return &StormFetcher{
		client: newClient(timeout, userAgent),
		url:    url,
	}
}

func (f *StormFetcher) Name() string { return "storm" }

func (f *StormFetcher) Signal(ctx context.Context) (float64, error) {
	alerts, err := f.Alerts(ctx)
	if err != nil {
		return 0, err
	}
	signal := StormScore(alerts)
	log.Info().Int("alerts", len(alerts)).Float64("signal", signal).Msg("Storm signal")
	return signal, nil
}

// Alerts returns the active alerts whose event matches a storm keyword.
func (f *StormFetcher) Alerts(ctx context.Context) ([]Alert, error) {
	var resp alertsResponse
	err := getJSON(ctx, f.client, f.url, map[string]string{
		"active":       "true",
		"status":       "actual",
		"message_type": "alert",
	}, &resp)
	if err != nil {
		return nil, err
	}

	var relevant []Alert
	for _, feat := range resp.Features {
		event := strings.ToLower(feat.Properties.Event)
		for _, kw := range stormKeywords {
			if strings.Contains(event, kw) {
				relevant = append(relevant, feat.Properties)
				break
			}
		}
	}
	log.Debug().Int("total", len(resp.Features)).Int("relevant", len(relevant)).Msg("NOAA alerts fetched")
	return relevant, nil
}

// StormScore sums per-alert strength (event base x severity multiplier),
// capped at 1.
func StormScore(alerts []Alert) float64 {
	score := 0.0
	for _, a := range alerts {
		event := strings.ToLower(a.Event)
		base := 0.1
		switch {
		case strings.Contains(event, "winter"), strings.Contains(event, "blizzard"):
			base = 0.3
		case strings.Contains(event, "storm"):
			base = 0.2
		case strings.Contains(event, "severe"):
			base = 0.15
		}

		mult := 0.8
		switch strings.ToLower(a.Severity) {
		case "extreme":
			mult = 1.5
		case "severe":
			mult = 1.2
		case "moderate":
			mult = 1.0
		}
		score += base * mult
	}
	return math.Min(score, 1.0)
}
