// Package weather provides synthetic weather tools for demos.
// The values are random, and reproducible when a seed is set.
package weather

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/toolagent/tools"
)

// Tool names
const (
	ToolWeather     = "get_weather"
	ToolTemperature = "get_temperature"
	ToolHumidity    = "get_humidity"
)

var (
	conditions   = []string{"sunny", "rainy", "cloudy", "snowy", "windy"}
	temperatures = []int{15, 20, 25, 30, 5, 10}
)

// CityRequest represents the tool input.
type CityRequest struct {
	City string `json:"city" yaml:"city" jsonschema:"description=The name of the city"`
}

// Report is the weather description.
type Report string

func (r Report) String() string {
	return string(r)
}

// Value is an integer measurement.
type Value int

func (v Value) String() string {
	return strconv.Itoa(int(v))
}

// Provider generates the weather.
type Provider struct {
	lock  sync.Mutex
	faker *gofakeit.Faker
}

// NewProvider returns a provider, seed 0 means a random seed.
func NewProvider(seed uint64) *Provider {
	return &Provider{
		faker: gofakeit.New(seed),
	}
}

// Weather returns a description of the current weather in the city.
func (p *Provider) Weather(_ context.Context, req *CityRequest) (*Report, error) {
	p.lock.Lock()
	condition := p.faker.RandomString(conditions)
	temp := temperatures[p.faker.IntRange(0, len(temperatures)-1)]
	p.lock.Unlock()

	r := Report(fmt.Sprintf("The weather in %s is %s with a temperature of %d°C", req.City, condition, temp))
	return &r, nil
}

// Temperature returns the temperature in Celsius, in [-10, 40].
func (p *Provider) Temperature(_ context.Context, _ *CityRequest) (*Value, error) {
	p.lock.Lock()
	v := Value(p.faker.IntRange(-10, 40))
	p.lock.Unlock()
	return &v, nil
}

// Humidity returns the humidity percentage, in [30, 90].
func (p *Provider) Humidity(_ context.Context, _ *CityRequest) (*Value, error) {
	p.lock.Lock()
	v := Value(p.faker.IntRange(30, 90))
	p.lock.Unlock()
	return &v, nil
}

// Tools returns the weather tools.
func (p *Provider) Tools() ([]tools.ITool, error) {
	weather, err := tools.NewFunc[CityRequest, Report](ToolWeather,
		"Get the current weather for a city. Returns a string describing the current weather.",
		p.Weather)
	if err != nil {
		return nil, err
	}
	temperature, err := tools.NewFunc[CityRequest, Value](ToolTemperature,
		"Get the temperature for a city. Returns the temperature in Celsius.",
		p.Temperature)
	if err != nil {
		return nil, err
	}
	humidity, err := tools.NewFunc[CityRequest, Value](ToolHumidity,
		"Get the humidity level for a city. Returns the humidity percentage (0-100).",
		p.Humidity)
	if err != nil {
		return nil, err
	}
	return []tools.ITool{weather, temperature, humidity}, nil
}
