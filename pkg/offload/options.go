package offload

import (
	"log/slog"

	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// Option configures a Session
type Option func(*Session)

// WithFrameSize sets the raw frame geometry. It is required.
func WithFrameSize(width, height int) Option {
	return func(s *Session) {
		s.width = width
		s.height = height
	}
}

// WithSelector sets the device the execution context binds to
func WithSelector(sel device.Selector) Option {
	return func(s *Session) {
		s.sel = sel
		s.selSet = true
	}
}

// WithColorFormat sets the color format of raw frames
func WithColorFormat(c tensor.ColorFormat) Option {
	return func(s *Session) {
		s.color = c
	}
}

// WithResizeAlgorithm sets the resize the execution layer applies
func WithResizeAlgorithm(r infer.ResizeAlgorithm) Option {
	return func(s *Session) {
		s.resize = r
	}
}

// WithInputName binds frames to the named input instead of the first
// declared one
func WithInputName(name string) Option {
	return func(s *Session) {
		s.inputName = name
	}
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
