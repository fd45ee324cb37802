package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestWeatherTool_Execute(t *testing.T) {
	tool := NewWeatherTool()
	tests := []struct {
		location string
		want     string
	}{
		{"new york", "The weather for New York is 75 degrees."},
		{"New York", "The weather for New York is 75 degrees."},
		{"LOS ANGELES", "The weather for Los Angeles is 80 degrees."},
		{"Los Angeles", "The weather for Los Angeles is 80 degrees."},
		{"Nowhere", "The weather for Nowhere is 70 degrees."},
		{"", "The weather for  is 70 degrees."},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), map[string]any{"location": tt.location})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestJobsTool_Execute(t *testing.T) {
	tool := NewJobsTool()
	tests := []struct {
		skill string
		want  string
	}{
		{"I'm good at math", "The best job for you is financial analyst."},
		{"I like computers", "The best job for you is software developer."},
		{"great communication skills", "The best job for you is teacher."},
		{"math and computer", "The best job for you is financial analyst."},
		{"I can lift heavy things", fallbackJob},
		{"MATH", fallbackJob},
	}
	for _, tt := range tests {
		t.Run(tt.skill, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), map[string]any{"skill": tt.skill})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTools_Declarations(t *testing.T) {
	for _, tool := range []Tool{NewWeatherTool(), NewJobsTool()} {
		require.NotEmpty(t, tool.Description())
		for _, req := range tool.RequiredParameters() {
			require.Contains(t, tool.Parameters(), req)
		}
	}
}

func TestProperty_WeatherFallbackTemplate(t *testing.T) {
	tool := NewWeatherTool()
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("unknown locations use the generic template", prop.ForAll(
		func(location string) bool {
			got, err := tool.Execute(context.Background(), map[string]any{"location": location})
			return err == nil && got == "The weather for "+location+" is 70 degrees."
		},
		gen.AlphaString().SuchThat(func(s string) bool {
			l := strings.ToLower(s)
			return l != "new york" && l != "los angeles"
		}),
	))

	properties.TestingRun(t)
}

func TestProperty_JobsFallback(t *testing.T) {
	tool := NewJobsTool()
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("skills without a keyword get the fallback", prop.ForAll(
		func(skill string) bool {
			got, err := tool.Execute(context.Background(), map[string]any{"skill": skill})
			return err == nil && got == fallbackJob
		},
		gen.AlphaString().SuchThat(func(s string) bool {
			return !strings.Contains(s, "math") && !strings.Contains(s, "computer") && !strings.Contains(s, "communication")
		}),
	))

	properties.TestingRun(t)
}
