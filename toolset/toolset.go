// Package toolset holds the assistant's built-in tools: calendar
// scheduling, email, live weather, and page browsing for the research
// sub-agent. Calendar and email are deterministic demo implementations
// that return human-readable summaries instead of performing real I/O;
// weather and browsing perform real HTTP against keyless public APIs.
package toolset

import (
	"net/http"
	"time"

	"github.com/durable-agents/assistant/tools"
)

// Config carries the knobs the HTTP-backed tools need. Zero values select
// the public endpoints and a client with a sane timeout.
type Config struct {
	Client         *http.Client
	GeocodeBaseURL string
	WeatherBaseURL string
}

func (c Config) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// RegisterAll adds every built-in tool to the registry.
func RegisterAll(reg *tools.Registry, cfg Config) error {
	if err := RegisterCalendar(reg); err != nil {
		return err
	}
	if err := RegisterEmail(reg); err != nil {
		return err
	}
	if err := RegisterWeather(reg, cfg); err != nil {
		return err
	}
	return RegisterBrowse(reg, cfg)
}
