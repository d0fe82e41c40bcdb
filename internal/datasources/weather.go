package datasources

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	hddBaseTemp      = 65.0 // °F
	historicalAvgHDD = 25.0 // 7-day regional HDD considered normal
	forecastDays     = 7
	forecastTimezone = "America/New_York"
)

type forecastResponse struct {
	Daily struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// WeatherFetcher derives the temperature signal from open-meteo forecasts:
// colder than normal heating demand is bullish.
type WeatherFetcher struct {
	client  *resty.Client
	url     string
	regions []string
}

func NewWeatherFetcher(url string, regions []string, timeout time.Duration) *WeatherFetcher {
	return &WeatherFetcher{
		client:  newClient(timeout, ""),
		url:     url,
		regions: regions,
	}
}

func (f *WeatherFetcher) Name() string { return "temperature" }

// Signal averages the 7-day HDD sum over every region that answered and
// compares it to the historical norm. It fails only if no region answered.
func (f *WeatherFetcher) Signal(ctx context.Context) (float64, error) {
	log.Info().Int("regions", len(f.regions)).Msg("Calculating regional HDD signal")

	total := 0.0
	valid := 0
	for _, region := range f.regions {
		hdd, err := f.regionHDD(ctx, region)
		if err != nil {
			log.Error().Err(err).Str("region", region).Msg("Error fetching weather data")
			continue
		}
		log.Info().Str("region", region).Float64("hdd", hdd).Msg("Region HDD")
		total += hdd
		valid++
	}
	if valid == 0 {
		return 0, fmt.Errorf("no valid weather data from %d regions", len(f.regions))
	}

	avg := total / float64(valid)
	signal := (avg - historicalAvgHDD) / historicalAvgHDD
	log.Info().Float64("avg_hdd", avg).Float64("signal", signal).Msg("Temperature signal")
	return signal, nil
}

func (f *WeatherFetcher) regionHDD(ctx context.Context, region string) (float64, error) {
	lat, lon, ok := strings.Cut(region, ",")
	if !ok {
		return 0, fmt.Errorf("invalid region %q, want \"lat,lon\"", region)
	}

	var resp forecastResponse
	err := getJSON(ctx, f.client, f.url, map[string]string{
		"latitude":         strings.TrimSpace(lat),
		"longitude":        strings.TrimSpace(lon),
		"daily":            "temperature_2m_max,temperature_2m_min",
		"temperature_unit": "fahrenheit",
		"timezone":         forecastTimezone,
		"forecast_days":    fmt.Sprint(forecastDays),
	}, &resp)
	if err != nil {
		return 0, err
	}

	days := len(resp.Daily.TemperatureMax)
	if len(resp.Daily.TemperatureMin) < days {
		days = len(resp.Daily.TemperatureMin)
	}
	if days == 0 {
		return 0, fmt.Errorf("forecast for %s has no daily temperatures", region)
	}

	hdd := 0.0
	for i := 0; i < days; i++ {
		hdd += HDD(resp.Daily.TemperatureMax[i], resp.Daily.TemperatureMin[i])
	}
	return hdd, nil
}

// HDD is the heating degree days of one day, base 65°F.
func HDD(tempMax, tempMin float64) float64 {
	return math.Max(0, hddBaseTemp-(tempMax+tempMin)/2)
}
