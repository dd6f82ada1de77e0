// Package llm provides the inference providers used to categorize transactions.
// It supports cloud providers (OpenAI, Anthropic, Gemini) and an on-device model
// run through a llama.cpp-compatible CLI, with rate limiting, retry, health
// tracking and preference-based provider selection.
package llm
