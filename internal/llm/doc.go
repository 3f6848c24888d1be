// Package llm talks to hosted language models. It supports OpenAI and
// Anthropic, and Guarded layers rate limiting, circuit breaking, retries and
// response caching over any Client.
package llm
