package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// RemoteOptions configures a RemoteSink.
type RemoteOptions struct {
	// Header is sent with the handshake, e.g. an Authorization token.
	Header http.Header
	// WriteTimeout bounds each message write. Default 5s.
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// RemoteSink streams messages as JSON text frames to a websocket collector.
// Writes are serialized because a websocket connection does not allow
// concurrent writers.
type RemoteSink struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// DialRemoteSink connects to url (ws:// or wss://).
func DialRemoteSink(ctx context.Context, url string, opts RemoteOptions) (*RemoteSink, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: opts.Header})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RemoteSink{
		conn:    conn,
		timeout: opts.WriteTimeout,
		logger:  opts.Logger.With(zap.String("component", "tracing_remote"), zap.String("url", url)),
	}, nil
}

func (s *RemoteSink) ProcessMessage(ctx context.Context, msg FeatureMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal trace message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("remote sink closed")
	}

	// 运行 ctx 取消后仍需发出收尾事件
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.logger.Warn("trace write failed", zap.String("event", string(msg.Event)), zap.Error(err))
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (s *RemoteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "run finished")
}
