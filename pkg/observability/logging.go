package observability

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger shared by all savana components.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger tagged with the given component name.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, component, level)
}

// NewLoggerWithWriter is NewLogger with an explicit destination; tests use
// io.Discard or a buffer.
func NewLoggerWithWriter(w io.Writer, component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "savana"),
	)

	return &Logger{Logger: logger}
}

// WithRoom returns a logger with room-specific fields.
func (l *Logger) WithRoom(roomID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("room_id", roomID),
		),
	}
}

// WithChannel returns a logger with channel-specific fields.
func (l *Logger) WithChannel(channelID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("channel_id", channelID),
		),
	}
}

// WithUser returns a logger with the authenticated identity attached.
func (l *Logger) WithUser(email string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("user", email),
		),
	}
}

// ChannelAdmitted logs a successful admission handshake.
func (l *Logger) ChannelAdmitted(channelID, roomID, email string) {
	l.Info("channel admitted",
		slog.String("channel_id", channelID),
		slog.String("room_id", roomID),
		slog.String("user", email),
	)
}

// ChannelClosed logs a channel departure.
func (l *Logger) ChannelClosed(channelID, roomID, reason string) {
	l.Info("channel closed",
		slog.String("channel_id", channelID),
		slog.String("room_id", roomID),
		slog.String("reason", reason),
	)
}

// MessageRelayed logs a peer relay.
func (l *Logger) MessageRelayed(roomID string, recipients int) {
	l.Debug("message relayed",
		slog.String("room_id", roomID),
		slog.Int("recipients", recipients),
	)
}

// GenerationFailed logs a swallowed generation failure.
func (l *Logger) GenerationFailed(roomID string, err error) {
	l.Error("generation failed",
		slog.String("room_id", roomID),
		slog.String("error", err.Error()),
	)
}
