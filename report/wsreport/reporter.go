// Package wsreport forwards records flagged for reporting to a websocket
// collector as JSON text frames.
//
// Frames are written synchronously on the emitting goroutine. A failed write
// is logged and the record is dropped; there is no buffering or reconnect.
package wsreport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aponysus/ilw/observe"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Message types carried in Frame.Type.
const (
	TypeLog    = "log"
	TypeEvent  = "event"
	TypeMark   = "mark"
	TypeSettle = "settle"
)

// Frame is the JSON envelope written for each reported record.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// settleData adds the rendered rejection reason, which SettleRecord does not
// marshal itself.
type settleData struct {
	observe.SettleRecord
	Reason string `json:"reason,omitempty"`
}

var _ observe.Observer = (*Reporter)(nil)

// Reporter is an Observer writing to a single websocket connection.
type Reporter struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	logger       zerolog.Logger
	writeTimeout time.Duration
	closed       bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger used to report write failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reporter) {
		r.logger = l
	}
}

// WithWriteTimeout bounds each frame write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d >= 0 {
			r.writeTimeout = d
		}
	}
}

// Dial connects to the collector at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Reporter, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial report collector: %w", err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection.
func New(conn *websocket.Conn, opts ...Option) *Reporter {
	r := &Reporter{
		conn:         conn,
		logger:       zerolog.Nop(),
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Reporter) OnLog(rec observe.LogRecord) {
	if rec.Flags.Report {
		r.report(TypeLog, rec)
	}
}

func (r *Reporter) OnEvent(rec observe.EventRecord) {
	if rec.Flags.Report {
		r.report(TypeEvent, rec)
	}
}

func (r *Reporter) OnMark(rec observe.MarkRecord) {
	if rec.Flags.Report {
		r.report(TypeMark, rec)
	}
}

func (r *Reporter) OnSettle(rec observe.SettleRecord) {
	if rec.Flags.Report {
		r.report(TypeSettle, settleData{SettleRecord: rec, Reason: rec.ReasonString()})
	}
}

func (r *Reporter) report(kind string, data any) {
	if err := r.Send(Frame{Type: kind, Data: data}); err != nil {
		r.logger.Warn().Err(err).Str("record", kind).Msg("report record")
	}
}

// Send writes one frame.
func (r *Reporter) Send(frame Frame) error {
	if r == nil {
		return fmt.Errorf("reporter is not configured")
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.conn == nil {
		return fmt.Errorf("reporter is closed")
	}
	if r.writeTimeout > 0 {
		_ = r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the connection. It is safe to
// call more than once.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.conn == nil {
		return nil
	}
	r.closed = true
	_ = r.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return r.conn.Close()
}
