package middleware

import (
	"log/slog"
	"net/http"
)

// Chain holds an ordered stack of HTTP middleware. The first one added is the outermost.
type Chain struct {
	stack []func(http.Handler) http.Handler
}

func New(mw ...func(http.Handler) http.Handler) *Chain {
	return &Chain{stack: mw}
}

// Standard is the chain the server runs behind. Logger sits outside Recover
// so requests that panic are still logged with their 500.
func Standard(logger *slog.Logger) *Chain {
	return New(Logger(logger), Recover(logger))
}

func (c *Chain) Apply(handler http.Handler) http.Handler {
	for i := len(c.stack) - 1; i >= 0; i-- {
		handler = c.stack[i](handler)
	}
	return handler
}
