package controller

import (
	"context"
	"sync"

	"lora-console/api/client"
	"lora-console/core/models"
	"lora-console/core/store"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StreamDisconnectedMessage is shown when the live log stream fails
const StreamDisconnectedMessage = "WebSocket log stream disconnected."

// Stream is an open push channel for one job
type Stream interface {
	Next() (*models.LogMessage, error)
	Close() error
}

// StreamDialer opens the push channel for a job
type StreamDialer func(ctx context.Context, jobID int64) (Stream, error)

// ClientDialer adapts the API client's log subscription to a StreamDialer
func ClientDialer(c *client.Client) StreamDialer {
	return func(ctx context.Context, jobID int64) (Stream, error) {
		s, err := c.SubscribeLogs(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// subscription is the scoped lifetime of one job's push channel: it is
// acquired on selection and released on reselection, deselection or teardown
type subscription struct {
	jobID  int64
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func openSubscription(ctx context.Context, dial StreamDialer, jobID int64, st *store.Store, logger *zap.Logger) (*subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := dial(ctx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{
		jobID:  jobID,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(ctx, st, logger)
	return sub, nil
}

func (s *subscription) run(ctx context.Context, st *store.Store, logger *zap.Logger) {
	defer close(s.done)
	for {
		msg, err := s.stream.Next()
		if err != nil {
			if errors.Is(err, client.ErrMalformedMessage) {
				logger.Debug("dropping malformed log message", zap.Int64("job_id", s.jobID))
				continue
			}
			if ctx.Err() != nil || client.IsClosed(err) {
				return
			}
			logger.Warn("log stream failed", zap.Int64("job_id", s.jobID), zap.Error(err))
			st.SetError(StreamDisconnectedMessage)
			return
		}
		st.ApplyLogMessage(s.jobID, msg)
	}
}

// close releases the stream and waits for the reader to exit
func (s *subscription) close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.stream.Close()
		<-s.done
	})
}
