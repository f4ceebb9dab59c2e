// Package llm provides the generation step of a turn.
//
// Exactly one backend is selected at startup (Dify, Langflow or an
// OpenAI-compatible chat API); it is still wrapped in a chain of one so the
// pipeline treats every step the same way:
//
//	p, _ := llm.NewDify(llm.WithAPIKey(key), llm.WithBaseURL("https://api.dify.ai"))
//	c, _ := llm.NewChain([]llm.Provider{p}, chain.WithProviderTimeout(60*time.Second))
//	res, _ := c.Dispatch(ctx, &llm.Request{Prompt: "hello", Identity: "user-1"})
package llm

import (
	"context"
	"strings"

	"github.com/teslashibe/voicegate/pkg/chain"
)

// Provider names accepted by LLM_PROVIDER.
const (
	ProviderDify     = "dify"
	ProviderLangflow = "langflow"
	ProviderOpenAI   = "openai"
)

// Known reports whether name is a supported generation provider.
func Known(name string) bool {
	switch name {
	case ProviderDify, ProviderLangflow, ProviderOpenAI:
		return true
	}
	return false
}

// Request is one generation call.
type Request struct {
	// Prompt is the sanitized user input.
	Prompt string
	// Identity is forwarded to backends that track end users.
	Identity string
}

// Provider generates a reply for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (string, error)
}

// Link adapts a Provider to a chain slot.
func Link(p Provider) chain.Provider[*Request, string] {
	return chain.Func(p.Name(), p.Generate)
}

// NewChain builds the generation chain. Whitespace-only replies are unusable.
func NewChain(providers []Provider, opts ...chain.Option) (*chain.Chain[*Request, string], error) {
	links := make([]chain.Provider[*Request, string], len(providers))
	for i, p := range providers {
		links[i] = Link(p)
	}
	return chain.New("llm", func(s string) bool { return strings.TrimSpace(s) != "" }, links, opts...)
}
