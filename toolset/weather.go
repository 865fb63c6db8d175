package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/tools"
)

const (
	defaultGeocodeBaseURL = "https://geocoding-api.open-meteo.com"
	defaultWeatherBaseURL = "https://api.open-meteo.com"
)

// RegisterWeather adds the get_weather tool backed by the keyless
// Open-Meteo geocoding and forecast APIs.
func RegisterWeather(reg *tools.Registry, cfg Config) error {
	client := cfg.client()
	geocodeBase := cfg.GeocodeBaseURL
	if geocodeBase == "" {
		geocodeBase = defaultGeocodeBaseURL
	}
	weatherBase := cfg.WeatherBaseURL
	if weatherBase == "" {
		weatherBase = defaultWeatherBaseURL
	}

	return reg.Register(protocol.Tool{
		Name: "get_weather",
		Description: "Get current weather conditions for a location. " +
			"Use only for current or near-term conditions at a specific place.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City or place name, e.g. 'Boston'.",
				},
				"unit": map[string]any{
					"type":        "string",
					"enum":        []string{"celsius", "fahrenheit"},
					"description": "Temperature unit; defaults to celsius.",
				},
			},
			"required": []string{"location"},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, error) {
		return handleGetWeather(ctx, client, geocodeBase, weatherBase, raw)
	})
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Apparent    float64 `json:"apparent_temperature"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

func handleGetWeather(ctx context.Context, client *http.Client, geocodeBase, weatherBase string, raw json.RawMessage) (string, error) {
	var args struct {
		Location string `json:"location"`
		Unit     string `json:"unit"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %v", tools.ErrBadArguments, err)
	}
	if args.Location == "" {
		return "", fmt.Errorf("%w: location is required", tools.ErrBadArguments)
	}
	unit := args.Unit
	if unit != "fahrenheit" {
		unit = "celsius"
	}

	var geo geocodeResponse
	geocodeURL := fmt.Sprintf("%s/v1/search?%s", geocodeBase, url.Values{
		"name":  {args.Location},
		"count": {"1"},
	}.Encode())
	if err := fetchJSON(ctx, client, geocodeURL, &geo); err != nil {
		return "", fmt.Errorf("geocoding failed: %w", err)
	}
	if len(geo.Results) == 0 {
		return fmt.Sprintf("No location named %q could be found.", args.Location), nil
	}
	place := geo.Results[0]

	var forecast forecastResponse
	forecastURL := fmt.Sprintf("%s/v1/forecast?%s", weatherBase, url.Values{
		"latitude":         {fmt.Sprintf("%.4f", place.Latitude)},
		"longitude":        {fmt.Sprintf("%.4f", place.Longitude)},
		"current":          {"temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m"},
		"temperature_unit": {unit},
	}.Encode())
	if err := fetchJSON(ctx, client, forecastURL, &forecast); err != nil {
		return "", fmt.Errorf("forecast failed: %w", err)
	}

	unitSymbol := "°C"
	if unit == "fahrenheit" {
		unitSymbol = "°F"
	}
	return fmt.Sprintf(
		"Current weather for %s, %s: %.1f%s (feels like %.1f%s), humidity %.0f%%, wind %.1f km/h.",
		place.Name, place.Country,
		forecast.Current.Temperature, unitSymbol,
		forecast.Current.Apparent, unitSymbol,
		forecast.Current.Humidity,
		forecast.Current.WindSpeed,
	), nil
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
