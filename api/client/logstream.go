package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"lora-console/core/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrMalformedMessage is returned by LogStream.Next for frames that are not
// valid log messages. The stream stays usable.
var ErrMalformedMessage = errors.New("malformed log stream message")

// LogStream is a live subscription to one job's log stream
type LogStream struct {
	ID    string
	JobID int64

	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// LogStreamURL derives the push channel URL: http→ws, https→wss
func (c *Client) LogStreamURL(jobID int64) string {
	u := c.resolve(jobPath(jobID, "/logs/ws"), nil)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// SubscribeLogs opens the push channel for jobID
func (c *Client) SubscribeLogs(ctx context.Context, jobID int64) (*LogStream, error) {
	streamURL := c.LogStreamURL(jobID)
	header := http.Header{}
	id := uuid.NewString()
	header.Set("X-Request-ID", id)

	conn, resp, err := c.dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := checkResponse(resp); apiErr != nil {
				return nil, apiErr
			}
		}
		return nil, errors.Wrapf(err, "failed to open log stream %s", redact(streamURL))
	}
	return &LogStream{ID: id, JobID: jobID, conn: conn}, nil
}

// Next blocks until the next frame arrives. Frames that are not a JSON
// object return ErrMalformedMessage; any other error means the stream is done.
func (s *LogStream) Next() (*models.LogMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformedMessage
	}
	var msg models.LogMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrMalformedMessage
	}
	return &msg, nil
}

// Close is safe to call more than once
func (s *LogStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// IsClosed reports whether err is the result of a closed stream rather than
// a transport failure
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}
