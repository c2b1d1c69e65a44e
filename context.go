package dwloader

import (
	"context"
	"time"
)

type contextKey string

const (
	startedTimeKey contextKey = "startedTime"
	headerKey      contextKey = "header"
)

var timeSince = time.Since

func withStartedTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, startedTimeKey, time.Now())
}

func startedTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startedTimeKey).(time.Time)
	return t, ok
}

// Header is the header row of a parsed source.
type Header []string

// Index returns the position of column name, or -1.
func (h Header) Index(name string) int {
	for i, n := range h {
		if n == name {
			return i
		}
	}
	return -1
}

// Get returns the cell of row under column name, or "" when either is missing.
func (h Header) Get(row []string, name string) string {
	i := h.Index(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func withHeader(ctx context.Context, h Header) context.Context {
	return context.WithValue(ctx, headerKey, h)
}

// HeaderFrom returns the header row of the source being handled. It is set
// for handlers with HasHeader.
func HeaderFrom(ctx context.Context) (Header, bool) {
	h, ok := ctx.Value(headerKey).(Header)
	return h, ok
}
