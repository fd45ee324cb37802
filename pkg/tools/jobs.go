package tools

import (
	"context"
	"strings"
)

const fallbackJob = "The best job for you is bricklayer or burgerflipper."

// jobMatch maps a skill keyword to a recommendation. Checked in order.
type jobMatch struct {
	keyword string
	answer  string
}

// JobsTool recommends a job for a described skill.
type JobsTool struct {
	matches []jobMatch
}

// NewJobsTool creates the get_jobs tool.
func NewJobsTool() *JobsTool {
	return &JobsTool{
		matches: []jobMatch{
			{keyword: "math", answer: "The best job for you is financial analyst."},
			{keyword: "computer", answer: "The best job for you is software developer."},
			{keyword: "communication", answer: "The best job for you is teacher."},
		},
	}
}

func (t *JobsTool) Name() string {
	return "get_jobs"
}

func (t *JobsTool) Description() string {
	return "Get the job for a given skill."
}

func (t *JobsTool) Parameters() map[string]any {
	return map[string]any{
		"skill": map[string]any{
			"type":        "string",
			"description": "A free-form description of what the user is good at.",
		},
	}
}

func (t *JobsTool) RequiredParameters() []string {
	return []string{"skill"}
}

// Execute matches keywords as case-sensitive substrings of the skill.
func (t *JobsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	skill, err := stringArg(args, "skill")
	if err != nil {
		return "", err
	}
	for _, m := range t.matches {
		if strings.Contains(skill, m.keyword) {
			return m.answer, nil
		}
	}
	return fallbackJob, nil
}
