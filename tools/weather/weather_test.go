package weather_test

import (
	"context"
	"regexp"
	"strconv"
	"testing"

	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportRegex = regexp.MustCompile(`^The weather in Paris is (sunny|rainy|cloudy|snowy|windy) with a temperature of (15|20|25|30|5|10)°C$`)

func TestTools(t *testing.T) {
	t.Parallel()

	list, err := weather.NewProvider(42).Tools()
	require.NoError(t, err)

	r, err := tools.NewRegistry(list...)
	require.NoError(t, err)
	assert.Equal(t, []string{weather.ToolWeather, weather.ToolTemperature, weather.ToolHumidity}, r.Names())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		out, err := r.Dispatch(ctx, weather.ToolWeather, `{"city":"Paris"}`)
		require.NoError(t, err)
		assert.Regexp(t, reportRegex, out)

		out, err = r.Dispatch(ctx, weather.ToolTemperature, `{"city":"Paris"}`)
		require.NoError(t, err)
		v, err := strconv.Atoi(out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, -10)
		assert.LessOrEqual(t, v, 40)

		out, err = r.Dispatch(ctx, weather.ToolHumidity, `{"city":"Paris"}`)
		require.NoError(t, err)
		v, err = strconv.Atoi(out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 30)
		assert.LessOrEqual(t, v, 90)
	}

	_, err = r.Dispatch(ctx, weather.ToolHumidity, `{}`)
	assert.Error(t, err)
}

func TestProvider_Seed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p1 := weather.NewProvider(7)
	p2 := weather.NewProvider(7)
	for i := 0; i < 5; i++ {
		v1, err := p1.Temperature(ctx, &weather.CityRequest{City: "Tokyo"})
		require.NoError(t, err)
		v2, err := p2.Temperature(ctx, &weather.CityRequest{City: "Tokyo"})
		require.NoError(t, err)
		assert.Equal(t, *v1, *v2)

		r1, err := p1.Weather(ctx, &weather.CityRequest{City: "Tokyo"})
		require.NoError(t, err)
		r2, err := p2.Weather(ctx, &weather.CityRequest{City: "Tokyo"})
		require.NoError(t, err)
		assert.Equal(t, r1.String(), r2.String())
	}
}
