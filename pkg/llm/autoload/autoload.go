// Package autoload registers every built-in LLM provider factory.
package autoload

import (
	_ "chatagent/pkg/llm/gemini"   // "gemini"
	_ "chatagent/pkg/llm/ollama"   // "ollama"
	_ "chatagent/pkg/llm/openailm" // "openai"
)
