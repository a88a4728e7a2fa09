// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the engine sends correct requests
// and to feed controlled responses without a live model backend. Multi-turn
// tool-calling loops are scripted via CompleteScript, which returns one
// response per call in order.
package mock

import (
	"context"
	"sync"

	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Zero-value response
// fields make methods return zero values and nil errors; set Err fields to
// inject failures. Set fields before use — mutating them during a
// concurrent call is the caller's responsibility.
type Provider struct {
	mu sync.Mutex

	// CompleteScript is consumed one response per Complete call. When the
	// script is exhausted (or empty), CompleteResponse is returned instead.
	CompleteScript []*llm.CompletionResponse

	// CompleteResponse is the fallback response for Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error

	// StreamChunks is emitted in order on the channel from StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned by StreamCompletion instead of a
	// channel.
	StreamErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned by CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every Complete invocation in order.
	CompleteCalls []CompleteCall

	// StreamCalls records every StreamCompletion invocation in order.
	StreamCalls []StreamCall

	scriptIndex int
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response, the
// fallback, or CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.scriptIndex < len(p.CompleteScript) {
		resp := p.CompleteScript[p.scriptIndex]
		p.scriptIndex++
		return resp, nil
	}
	return p.CompleteResponse, nil
}

// StreamCompletion records the call and returns a channel emitting
// StreamChunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// CountTokens returns TokenCount, CountTokensErr.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns how many times Complete was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears recorded calls and rewinds the script.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
	p.scriptIndex = 0
}
