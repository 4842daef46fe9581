// Package providers defines the provider-agnostic request/response model,
// the Provider and Codec interfaces, the shared HTTP client with pooled
// connections and credential injection, and the registry snapshot that
// publishes the configured upstreams to the hot path.
//
// Concrete wire formats live in the kind subpackages (openai, anthropic,
// google, bedrock, ollama); each implements Codec and is wrapped by
// HTTPProvider from this package.
package providers
