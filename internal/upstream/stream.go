package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"relaygate-gateway/internal/metrics"
)

// StreamRun opens an agent run against the upstream and returns a channel
// of decoded events. Connection establishment happens synchronously so the
// caller can surface auth/connect failures before any streaming begins;
// the returned channel is fed by a goroutine that owns the response body
// and closes the channel when the stream ends. Cancelling ctx stops the
// read loop.
func (c *client) StreamRun(parentCtx context.Context, req *RunRequest, token string) (<-chan StreamResult, error) {
	if req == nil {
		return nil, errors.New("upstream: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("upstream: invalid request: %w", err)
	}

	c.logger.Debug("agent run starting",
		zap.String("app", req.AppName),
		zap.String("session_id", req.SessionID),
	)

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.StreamTimeout)

	req.Streaming = true
	body, err := json.Marshal(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream: marshal run request: %w", err)
	}

	url := c.cfg.BaseURL + "/run_sse"

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("upstream: build run request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		return c.httpClient.Do(httpReq)
	}

	// Connect with retries; no mid-stream retries.
	resp, err := c.doWithRetry(ctx, body, doOnce)
	if err != nil {
		cancel()
		return nil, &ConnectError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		cancel()

		c.logger.Error("agent run rejected",
			zap.String("app", req.AppName),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(raw), 200)),
		)
		return nil, &ConnectError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))}
	}

	results := make(chan StreamResult, 16)

	go c.readLoop(ctx, cancel, resp.Body, req, results)

	return results, nil
}

// readLoop reads raw chunks, reassembles frames, decodes them, and sends
// results until the stream ends, a terminal error occurs, or ctx is done.
func (c *client) readLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rc io.ReadCloser,
	req *RunRequest,
	results chan<- StreamResult,
) {
	defer close(results)
	defer cancel()
	defer rc.Close()

	var fb FrameBuffer
	buf := make([]byte, c.cfg.ReadChunkSize)
	eventCount := 0

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("agent stream cancelled",
				zap.String("session_id", req.SessionID),
				zap.Int("events", eventCount),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}

		n, readErr := rc.Read(buf)

		for _, frame := range fb.Feed(buf[:n]) {
			ev, err := DecodeFrame(frame)
			switch {
			case err == nil:
				metrics.FramesTotal.WithLabelValues("decoded").Inc()
				eventCount++

				select {
				case <-ctx.Done():
					return
				case results <- StreamResult{Event: ev}:
				}

			case errors.Is(err, ErrIncompleteFrame):
				// Best effort: log and skip, do not kill the session.
				metrics.FramesTotal.WithLabelValues("skipped").Inc()
				c.logger.Warn("skipping unparseable frame",
					zap.String("session_id", req.SessionID),
					zap.Int("frame_bytes", len(frame)),
				)

			default:
				// Terminal upstream failure embedded in the stream. Stop
				// processing further frames entirely.
				metrics.FramesTotal.WithLabelValues("fatal").Inc()
				c.logger.Error("fatal upstream frame",
					zap.String("session_id", req.SessionID),
					zap.Error(err),
				)

				select {
				case <-ctx.Done():
				case results <- StreamResult{Err: err}:
				}
				return
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if fb.Pending() > 0 {
					c.logger.Warn("stream ended with unterminated bytes buffered",
						zap.String("session_id", req.SessionID),
						zap.Int("pending_bytes", fb.Pending()),
					)
				}
				c.logger.Info("agent stream completed",
					zap.String("session_id", req.SessionID),
					zap.Int("events", eventCount),
				)
				return
			}

			if ctx.Err() != nil {
				c.logger.Info("agent stream cancelled",
					zap.String("session_id", req.SessionID),
					zap.Int("events", eventCount),
					zap.Error(ctx.Err()),
				)
				return
			}

			select {
			case <-ctx.Done():
			case results <- StreamResult{Err: fmt.Errorf("upstream: read stream: %w", readErr)}:
			}
			return
		}
	}
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
