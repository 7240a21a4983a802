package stdio

import (
	"io"
	"log/slog"
)

// Option configures a Handler at construction.
type Option func(*Handler)

// WithIO replaces the default os.Stdin/os.Stdout pair. A nil side keeps its
// default, which lets callers swap only one stream.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger sets the logger. Records carry the "stdio" session id.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMaxLineBytes bounds one inbound message line. A longer line ends Serve
// with a read error. Non-positive values keep the 4 MiB default.
func WithMaxLineBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxLine = n
		}
	}
}
