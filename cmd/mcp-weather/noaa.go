package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultNOAABaseURL = "https://api.weather.gov"

var errNoStations = errors.New("no observation stations found near this location")

// noaaClient reads forecasts, alerts and observations from the NWS API.
type noaaClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func newNOAAClient(baseURL, userAgent string) *noaaClient {
	if baseURL == "" {
		baseURL = defaultNOAABaseURL
	}
	return &noaaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type pointsResponse struct {
	Properties struct {
		Forecast            string `json:"forecast"`
		ForecastHourly      string `json:"forecastHourly"`
		ObservationStations string `json:"observationStations"`
	} `json:"properties"`
}

type period struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	TemperatureTrend string `json:"temperatureTrend,omitempty"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	ShortForecast    string `json:"shortForecast"`
	DetailedForecast string `json:"detailedForecast"`
}

type forecastResponse struct {
	Properties struct {
		Updated string   `json:"updated"`
		Periods []period `json:"periods"`
	} `json:"properties"`
}

type alertProperties struct {
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Certainty   string `json:"certainty"`
	Urgency     string `json:"urgency"`
	AreaDesc    string `json:"areaDesc"`
	Onset       string `json:"onset"`
	Expires     string `json:"expires"`
	Instruction string `json:"instruction"`
}

type alertsResponse struct {
	Features []struct {
		Properties alertProperties `json:"properties"`
	} `json:"features"`
}

type stationsResponse struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
	} `json:"features"`
}

type measurement struct {
	Value *float64 `json:"value"`
}

type observationResponse struct {
	Properties struct {
		Timestamp          string      `json:"timestamp"`
		TextDescription    string      `json:"textDescription"`
		Temperature        measurement `json:"temperature"`
		Dewpoint           measurement `json:"dewpoint"`
		WindDirection      measurement `json:"windDirection"`
		WindSpeed          measurement `json:"windSpeed"`
		RelativeHumidity   measurement `json:"relativeHumidity"`
		BarometricPressure measurement `json:"barometricPressure"`
		Visibility         measurement `json:"visibility"`
	} `json:"properties"`
}

// Forecast returns the formatted forecast for a coordinate.
func (c *noaaClient) Forecast(ctx context.Context, lat, lon float64, hourly bool) (string, error) {
	var points pointsResponse
	if err := c.getJSON(ctx, c.pointsURL(lat, lon), &points); err != nil {
		return "", fmt.Errorf("grid point lookup: %w", err)
	}

	forecastURL := points.Properties.Forecast
	if hourly {
		forecastURL = points.Properties.ForecastHourly
	}
	var fc forecastResponse
	if err := c.getJSON(ctx, forecastURL, &fc); err != nil {
		return "", fmt.Errorf("forecast: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Weather Forecast for %.4f, %.4f\n", lat, lon)
	fmt.Fprintf(&b, "Updated: %s\n\n", fc.Properties.Updated)
	for _, p := range fc.Properties.Periods {
		fmt.Fprintf(&b, "=== %s ===\n", p.Name)
		fmt.Fprintf(&b, "Temperature: %d°%s", p.Temperature, p.TemperatureUnit)
		if p.TemperatureTrend != "" {
			fmt.Fprintf(&b, " (trend: %s)", p.TemperatureTrend)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Wind: %s at %s\n", p.WindDirection, p.WindSpeed)
		fmt.Fprintf(&b, "Short Forecast: %s\n", p.ShortForecast)
		fmt.Fprintf(&b, "Detailed: %s\n\n", p.DetailedForecast)
	}
	return b.String(), nil
}

// Alerts returns the formatted active alerts for a state, optionally
// narrowed to a zone.
func (c *noaaClient) Alerts(ctx context.Context, state, zone string) (string, error) {
	q := url.Values{"area": {state}}
	if zone != "" {
		q.Set("zone", zone)
	}
	var alerts alertsResponse
	if err := c.getJSON(ctx, c.baseURL+"/alerts/active?"+q.Encode(), &alerts); err != nil {
		return "", fmt.Errorf("alerts: %w", err)
	}

	if len(alerts.Features) == 0 {
		return fmt.Sprintf("No active weather alerts for %s\n", state), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Weather Alerts for %s (%d alerts)\n\n", state, len(alerts.Features))
	for i, f := range alerts.Features {
		p := f.Properties
		fmt.Fprintf(&b, "=== Alert %d: %s ===\n", i+1, p.Event)
		fmt.Fprintf(&b, "Severity: %s | Certainty: %s | Urgency: %s\n", p.Severity, p.Certainty, p.Urgency)
		fmt.Fprintf(&b, "Area: %s\n", p.AreaDesc)
		fmt.Fprintf(&b, "Onset: %s\nExpires: %s\n", p.Onset, p.Expires)
		fmt.Fprintf(&b, "Headline: %s\n", p.Headline)
		fmt.Fprintf(&b, "\nDescription:\n%s\n", p.Description)
		if p.Instruction != "" {
			fmt.Fprintf(&b, "\nInstructions:\n%s\n", p.Instruction)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Observation returns the latest observation from the station nearest to
// a coordinate.
func (c *noaaClient) Observation(ctx context.Context, lat, lon float64) (string, error) {
	var points pointsResponse
	if err := c.getJSON(ctx, c.pointsURL(lat, lon), &points); err != nil {
		return "", fmt.Errorf("grid point lookup: %w", err)
	}

	var stations stationsResponse
	if err := c.getJSON(ctx, points.Properties.ObservationStations, &stations); err != nil {
		return "", fmt.Errorf("observation stations: %w", err)
	}
	if len(stations.Features) == 0 {
		return "", errNoStations
	}
	station := stations.Features[0].Properties

	var obs observationResponse
	obsURL := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, url.PathEscape(station.StationIdentifier))
	if err := c.getJSON(ctx, obsURL, &obs); err != nil {
		return "", fmt.Errorf("observation: %w", err)
	}

	p := obs.Properties
	var b strings.Builder
	b.WriteString("Current Weather Observation\n")
	fmt.Fprintf(&b, "Location: %.4f, %.4f\n", lat, lon)
	fmt.Fprintf(&b, "Station: %s (%s)\n", station.Name, station.StationIdentifier)
	fmt.Fprintf(&b, "Time: %s\n\n", p.Timestamp)
	if p.TextDescription != "" {
		fmt.Fprintf(&b, "Conditions: %s\n", p.TextDescription)
	}
	if v := p.Temperature.Value; v != nil {
		fmt.Fprintf(&b, "Temperature: %.1f°C (%.1f°F)\n", *v, celsiusToF(*v))
	}
	if v := p.Dewpoint.Value; v != nil {
		fmt.Fprintf(&b, "Dewpoint: %.1f°C (%.1f°F)\n", *v, celsiusToF(*v))
	}
	if v := p.RelativeHumidity.Value; v != nil {
		fmt.Fprintf(&b, "Humidity: %.0f%%\n", *v)
	}
	if p.WindSpeed.Value != nil && p.WindDirection.Value != nil {
		kmh := *p.WindSpeed.Value
		fmt.Fprintf(&b, "Wind: %.0f° at %.1f km/h (%.1f mph)\n", *p.WindDirection.Value, kmh, kmh*0.621371)
	}
	if v := p.BarometricPressure.Value; v != nil {
		fmt.Fprintf(&b, "Pressure: %.0f Pa (%.2f inHg)\n", *v, *v*0.0002953)
	}
	if v := p.Visibility.Value; v != nil {
		fmt.Fprintf(&b, "Visibility: %.0f m (%.1f miles)\n", *v, *v*0.000621371)
	}
	return b.String(), nil
}

func celsiusToF(c float64) float64 { return c*9/5 + 32 }

func (c *noaaClient) pointsURL(lat, lon float64) string {
	return fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)
}

func (c *noaaClient) getJSON(ctx context.Context, rawURL string, v any) error {
	if rawURL == "" {
		return errors.New("upstream returned no URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	// NOAA rejects requests without a User-Agent
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
