// Package handlers implements the inbound HTTP endpoints: chat
// completions, model listing and health.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"helios-hq/relay/pkg/dispatch"
	"helios-hq/relay/pkg/idempotency"
	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy"
	"helios-hq/relay/pkg/proxy/middleware"
	"helios-hq/relay/pkg/proxy/types"
	"helios-hq/relay/pkg/telemetry/logging"
	"helios-hq/relay/pkg/telemetry/tracing"
)

// chatEndpoint is the idempotency scoping key for this handler.
const chatEndpoint = "/v1/chat/completions"

// idempotencyKeyHeader carries the client's idempotency token.
const idempotencyKeyHeader = "Idempotency-Key"

// replayedHeader marks a replayed response.
const replayedHeader = "Idempotent-Replayed"

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	pipeline *dispatch.Pipeline
	limiter  *ratelimit.Limiter
	idem     idempotency.Store
}

// NewChatHandler assembles the handler. idem may be nil to disable replay.
func NewChatHandler(pipeline *dispatch.Pipeline, limiter *ratelimit.Limiter, idem idempotency.Store) *ChatHandler {
	return &ChatHandler{pipeline: pipeline, limiter: limiter, idem: idem}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)
	logger := logging.FromContext(ctx)
	start := time.Now()

	if r.Method != http.MethodPost {
		errResp := types.NewError(types.ErrorTypeInvalidRequest,
			fmt.Sprintf("Method %s not allowed. Use POST.", r.Method),
			"method_not_allowed", requestID)
		proxy.WriteErrorResponse(w, errResp)
		return
	}

	h.setRateLimitHeaders(w, identity)

	// Idempotency replay: a repeated key within the window returns the
	// stored body byte-for-byte.
	idemKey := r.Header.Get(idempotencyKeyHeader)
	if idemKey != "" && len(idemKey) > idempotency.MaxKeyLength {
		errResp := types.NewError(types.ErrorTypeInvalidRequest,
			"Idempotency-Key must be at most 255 bytes.", types.CodeInvalidValue, requestID)
		proxy.WriteErrorResponse(w, errResp)
		return
	}
	if h.idem != nil && idemKey != "" {
		if entry, ok, err := h.idem.Get(ctx, identity.PrincipalID, chatEndpoint, idemKey); err == nil && ok {
			w.Header().Set(replayedHeader, "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(entry.Status)
			w.Write(entry.Body)
			return
		}
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		logger.Error("failed to parse request", "error", err)
		proxy.WriteErrorResponse(w, proxy.MapError(err, requestID))
		return
	}

	req := proxy.ToUniform(chatReq)
	req.RequestID = requestID
	req.PrincipalID = identity.PrincipalID
	req.TenantID = identity.TenantID
	req.IdempotencyKey = idemKey
	req.Deadline = proxy.DeadlineFrom(r)

	logger.Info("processing chat completion request",
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", req.Stream,
	)

	result, err := h.pipeline.Dispatch(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.writeDispatchError(w, err, requestID, logger)
		return
	}

	if result.Stream != nil {
		h.serveStream(w, r, result, req, requestID)
		return
	}

	openaiResp := proxy.FormatChatCompletionResponse(result.Response, chatReq.Model)
	body, err := json.Marshal(openaiResp)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		proxy.WriteErrorResponse(w, types.NewError(types.ErrorTypeInternal,
			"An internal error occurred.", types.CodeInternalError, requestID))
		return
	}

	if h.idem != nil && idemKey != "" {
		if err := h.idem.Put(ctx, identity.PrincipalID, chatEndpoint, idemKey,
			idempotency.Entry{Status: http.StatusOK, Body: body}); err != nil {
			logger.Warn("failed to store idempotent response", "error", err)
		}
	}

	logger.Info("chat completion successful",
		"provider", result.Provider,
		"model", chatReq.Model,
		"finish_reason", result.Response.FinishReason,
		"prompt_tokens", result.Response.Usage.PromptTokens,
		"completion_tokens", result.Response.Usage.CompletionTokens,
		"total_latency_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// serveStream pumps coupled stream events to the client as SSE frames.
func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, result *dispatch.Result, req *providers.CompletionRequest, requestID string) {
	logger := logging.FromContext(r.Context())
	s := result.Stream

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	responseID := "chatcmpl-" + requestID
	chunkCount := 0

	defer s.Cancel()

	for {
		select {
		case <-r.Context().Done():
			// Client hung up: cancel upstream, nothing more to write.
			s.Cancel()
			logger.Warn("client disconnected during streaming",
				"provider", result.Provider,
				"chunks_sent", chunkCount,
			)
			return

		case ev, ok := <-s.Events():
			if !ok {
				// Terminal already written; finish the SSE protocol.
				proxy.WriteSSEDone(w)
				logger.Info("streaming chat completion finished",
					"provider", result.Provider,
					"model", req.Model,
					"chunks_sent", chunkCount,
				)
				return
			}

			if ev.KeepAlive {
				if err := proxy.WriteSSEKeepAlive(w); err != nil {
					s.Cancel()
					return
				}
				continue
			}

			chunk := ev.Chunk
			if chunk.Err != nil {
				// Mid-stream failure: status is committed, surface a
				// terminal error frame inside the stream.
				logger.Error("stream interrupted",
					"provider", result.Provider,
					"chunks_sent", chunkCount,
				)
				proxy.WriteSSEError(w, proxy.StreamInterruptionError(requestID))
				proxy.WriteSSEDone(w)
				return
			}

			openaiChunk := proxy.FormatStreamChunk(chunk, req.Model, responseID)
			if err := proxy.WriteSSEChunk(w, openaiChunk); err != nil {
				s.Cancel()
				logger.Warn("failed to write SSE chunk", "error", err)
				return
			}
			if !chunk.Terminal() {
				chunkCount++
			}
		}
	}
}

// writeDispatchError logs and writes the mapped envelope, attaching
// Retry-After where the taxonomy requires it.
func (h *ChatHandler) writeDispatchError(w http.ResponseWriter, err error, requestID string, logger *slog.Logger) {
	logger.Error("dispatch failed", "error", err)

	errResp := proxy.MapError(err, requestID)
	status := errResp.Error.HTTPStatusCode()

	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	}

	proxy.WriteErrorResponse(w, errResp)
}

// retryAfterSeconds extracts the most specific retry hint from the error
// chain, with a conservative floor of one second.
func retryAfterSeconds(err error) int {
	var rateLimited *dispatch.RateLimitedError
	if errors.As(err, &rateLimited) {
		return ceilSeconds(rateLimited.RetryAfter)
	}
	var allFailed *dispatch.AllProvidersFailedError
	if errors.As(err, &allFailed) && allFailed.RetryAfter > 0 {
		return ceilSeconds(allFailed.RetryAfter)
	}
	return 1
}

func ceilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// setRateLimitHeaders publishes the caller's current bucket state.
func (h *ChatHandler) setRateLimitHeaders(w http.ResponseWriter, identity middleware.Identity) {
	if h.limiter == nil {
		return
	}
	limit, remaining, reset := h.limiter.Status(ratelimit.Keys{
		APIKey: identity.PrincipalID,
		Tenant: identity.TenantID,
		Route:  "chat-completions",
	})
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}
