package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"htmlchat/internal/chat"
)

// ResponderFunc adapts a function to chat.Responder.
type ResponderFunc func(ctx context.Context, text string) (chat.Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, text string) (chat.Reply, error) {
	return f(ctx, text)
}

// Middleware decorates a Responder with a cross-cutting concern
// (rate limiting, retries, timeouts, fallback).
type Middleware func(chat.Responder) chat.Responder

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner chat.Responder, mws ...Middleware) chat.Responder {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit waits for a token before every call. If rps <= 0 the limiter
// is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next chat.Responder) chat.Responder {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		return ResponderFunc(func(ctx context.Context, text string) (chat.Reply, error) {
			if err := limiter.Wait(ctx); err != nil {
				return chat.Reply{}, err
			}
			return next.Respond(ctx, text)
		})
	}
}

// Retry retries up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next chat.Responder) chat.Responder {
		return ResponderFunc(func(ctx context.Context, text string) (chat.Reply, error) {
			var last error
			for i := 0; i < maxAttempts; i++ {
				reply, err := next.Respond(ctx, text)
				if err == nil {
					return reply, nil
				}
				var pErr *PermanentError
				if errors.As(err, &pErr) {
					return chat.Reply{}, err
				}
				last = err
				if i == maxAttempts-1 {
					break
				}
				t := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					t.Stop()
					return chat.Reply{}, ctx.Err()
				case <-t.C:
				}
			}
			return chat.Reply{}, last
		})
	}
}

// Timeout bounds the whole call, retries included.
func Timeout(d time.Duration) Middleware {
	return func(next chat.Responder) chat.Responder {
		if d <= 0 {
			return next
		}
		return ResponderFunc(func(ctx context.Context, text string) (chat.Reply, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Respond(ctx, text)
		})
	}
}

// Fallback answers with secondary whenever the wrapped responder fails,
// unless the caller itself has given up.
func Fallback(secondary chat.Responder, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next chat.Responder) chat.Responder {
		return ResponderFunc(func(ctx context.Context, text string) (chat.Reply, error) {
			start := time.Now()
			reply, err := next.Respond(ctx, text)
			if err == nil {
				logger.Debug("model reply", zap.Duration("took", time.Since(start)), zap.Bool("html", reply.HTML != nil))
				return reply, nil
			}
			if ctx.Err() != nil {
				return chat.Reply{}, ctx.Err()
			}
			logger.Warn("model reply failed, falling back", zap.Duration("took", time.Since(start)), zap.Error(err))
			return secondary.Respond(ctx, text)
		})
	}
}
