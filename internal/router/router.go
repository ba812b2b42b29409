// Package router implements the Escalation Router (spec.md §4.5): local
// vs. remote query routing, redaction-before-transmission, and the durable
// usage ledger.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/SuperInstance/tripartite/internal/consensus"
	"github.com/SuperInstance/tripartite/internal/knowledge"
	"github.com/SuperInstance/tripartite/internal/privacy"
)

// EscalationRequest is the payload sent to the remote peer, per spec.md
// §4.5's "Remote path" clause.
type EscalationRequest struct {
	RequestID       string
	SessionID       string
	RedactedQuery   string
	Framing         string
	RedactedChunks  []string
	ModelPreference string
	MaxTokens       int
}

// EscalationResponse is the remote peer's reply before reinflation.
type EscalationResponse struct {
	Text      string
	TokensIn  int
	TokensOut int
	CostCents int
}

// RemotePeer abstracts the Tunnel's escalation round trip so this package
// does not import internal/tunnel directly (avoiding a dependency cycle
// with the Tunnel's own router-facing client helpers).
type RemotePeer interface {
	Escalate(ctx context.Context, req EscalationRequest) (EscalationResponse, error)
}

// Router decides, per query, whether to run locally or escalate remotely.
type Router struct {
	Consensus *consensus.Engine
	Proxy     *privacy.Proxy
	Vault     *knowledge.Vault
	Ledger    *Ledger
	Remote    RemotePeer

	// TokenSource is an OAuth2 token source for the device's bearer token.
	// Route does not read it, and nothing in this repository sets it.
	TokenSource oauth2.TokenSource

	// AllowLocalFallback controls whether RemoteUnavailable/Timeout fall
	// back to the local path (spec.md §4.5 Failure handling) or propagate.
	AllowLocalFallback bool

	ModelPreference string
	MaxTokens       int
}

// Route implements spec.md §4.5's top-level decision and both paths.
func (r *Router) Route(ctx context.Context, req Request) (string, error) {
	escalate, _ := shouldEscalate(req)
	if !escalate {
		return r.routeLocal(ctx, req)
	}

	text, err := r.routeRemote(ctx, req)
	if err == nil {
		return text, nil
	}

	fallbackable := errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrTimeout)
	if fallbackable && r.AllowLocalFallback {
		return r.routeLocal(ctx, req)
	}
	return "", err
}

// routeLocal calls the Consensus Engine directly; the Knowledge Vault is
// queried with raw text since the local zone is trusted (spec.md §4.5).
func (r *Router) routeLocal(ctx context.Context, req Request) (string, error) {
	outcome, err := r.Consensus.Run(ctx, req.Query, req.SessionID)
	if err != nil {
		return "", fmt.Errorf("router: local consensus: %w", err)
	}
	switch outcome.Kind {
	case consensus.Vetoed:
		return "", fmt.Errorf("router: query vetoed: %s", outcome.Reason)
	case consensus.Reached:
		return outcome.Content, nil
	default:
		return outcome.Content, nil
	}
}

// routeRemote implements spec.md §4.5's Remote path: redact before
// transmission, attach minimal context, dispatch, reinflate, record usage.
func (r *Router) routeRemote(ctx context.Context, req Request) (string, error) {
	if r.Remote == nil {
		return "", ErrRemoteUnavailable
	}

	redacted, err := r.Proxy.Redact(req.Query, req.SessionID)
	if err != nil {
		// A redaction that cannot complete must never be forwarded remotely
		// (spec.md §7): treat as RemoteUnavailable for safety.
		return "", fmt.Errorf("%w: redaction incomplete: %v", ErrRemoteUnavailable, err)
	}

	var redactedChunks []string
	if r.Vault != nil {
		if results, err := r.Vault.Search(req.Query, 5); err == nil {
			for _, res := range results {
				rr, err := r.Proxy.Redact(res.Content, req.SessionID)
				if err != nil {
					return "", fmt.Errorf("%w: chunk redaction incomplete: %v", ErrRemoteUnavailable, err)
				}
				redactedChunks = append(redactedChunks, rr.RedactedText)
			}
		}
	}

	escReq := EscalationRequest{
		RequestID:       uuid.NewString(),
		SessionID:       req.SessionID,
		RedactedQuery:   redacted.RedactedText,
		RedactedChunks:  redactedChunks,
		ModelPreference: r.ModelPreference,
		MaxTokens:       r.MaxTokens,
	}

	resp, err := r.Remote.Escalate(ctx, escReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	plain, err := r.Proxy.Reinflate(resp.Text, req.SessionID)
	if err != nil {
		return "", fmt.Errorf("router: reinflate response: %w", err)
	}

	if r.Ledger != nil {
		costBasis := float64(resp.CostCents) / 100.0
		if err := r.Ledger.Record(escReq.RequestID, resp.TokensIn, resp.TokensOut, costBasis); err != nil {
			return "", fmt.Errorf("router: record usage: %w", err)
		}
	}

	return plain, nil
}
