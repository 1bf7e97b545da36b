package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// LogSink writes every message to a zap logger at Debug (events) or Info
// (messages).
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "tracing"))}
}

func (s *LogSink) ProcessMessage(_ context.Context, msg FeatureMessage) error {
	fields := []zap.Field{
		zap.String("event", string(msg.Event)),
		zap.String("run_id", msg.RunID),
		zap.Time("timestamp", msg.Timestamp),
	}
	if msg.Node != "" {
		fields = append(fields, zap.String("node", msg.Node))
	}
	if msg.Strategy != "" {
		fields = append(fields, zap.String("strategy", msg.Strategy))
	}
	if len(msg.Messages) > 0 {
		fields = append(fields, zap.Int("messages", len(msg.Messages)))
	}
	if msg.Error != "" {
		fields = append(fields, zap.String("error", msg.Error))
	}

	switch {
	case msg.Error != "":
		s.logger.Warn("trace", fields...)
	case msg.Kind == KindMessage:
		s.logger.Info("trace", fields...)
	default:
		s.logger.Debug("trace", fields...)
	}
	return nil
}

// WriterSink encodes messages as JSON lines.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewWriterSink creates a JSONL sink over w. If w is an io.Closer it is
// closed with the sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, enc: json.NewEncoder(w)}
}

func (s *WriterSink) ProcessMessage(_ context.Context, msg FeatureMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode trace message: %w", err)
	}
	return nil
}

func (s *WriterSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MemorySink keeps messages in memory. Useful in tests and for
// post-run inspection.
type MemorySink struct {
	mu       sync.Mutex
	messages []FeatureMessage
}

func (s *MemorySink) ProcessMessage(_ context.Context, msg FeatureMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

// Messages returns a copy of the collected messages.
func (s *MemorySink) Messages() []FeatureMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FeatureMessage(nil), s.messages...)
}
