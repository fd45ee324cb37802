package tools

import (
	"context"
	"fmt"
	"strings"
)

// WeatherTool reports the weather for a location. Known cities are matched
// case-insensitively; anything else gets the generic reading.
type WeatherTool struct {
	known map[string]string
}

// NewWeatherTool creates the get_weather tool.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		known: map[string]string{
			"new york":    "The weather for New York is 75 degrees.",
			"los angeles": "The weather for Los Angeles is 80 degrees.",
		},
	}
}

func (t *WeatherTool) Name() string {
	return "get_weather"
}

func (t *WeatherTool) Description() string {
	return "Get the weather for a given location."
}

func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "The city or place to report the weather for, e.g. 'New York'.",
		},
	}
}

func (t *WeatherTool) RequiredParameters() []string {
	return []string{"location"}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	location, err := stringArg(args, "location")
	if err != nil {
		return "", err
	}
	if report, ok := t.known[strings.ToLower(location)]; ok {
		return report, nil
	}
	return fmt.Sprintf("The weather for %s is 70 degrees.", location), nil
}
