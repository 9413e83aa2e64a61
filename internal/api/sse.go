package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/featherwatch/featherwatch/internal/broadcast"
)

// ServeStream streams detection messages to the client as server-sent
// events. Slow clients are evicted by the broadcaster rather than allowed to
// stall delivery for everyone else.
func (s *Server) ServeStream(c echo.Context) error {
	sub := broadcast.NewChannelSubscriber(s.cfg.QueueSize)
	s.broadcaster.Subscribe(sub)
	defer s.broadcaster.Unsubscribe(sub.ID())

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	// Initial hello so clients can confirm the stream is live before the
	// first detection arrives.
	hello, _ := json.Marshal(map[string]string{"status": "connected"})
	if _, err := fmt.Fprintf(resp, "event: connected\ndata: %s\n\n", hello); err != nil {
		return nil
	}
	resp.Flush()

	s.logger.Debug("stream client connected", "subscriber_id", sub.ID())

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stream client disconnected", "subscriber_id", sub.ID())
			return nil

		case msg, ok := <-sub.C():
			if !ok {
				// Evicted by the broadcaster.
				s.logger.Debug("stream subscriber closed", "subscriber_id", sub.ID())
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to encode stream message", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
				return nil
			}
			resp.Flush()

		case <-heartbeat.C:
			// SSE comment line keeps intermediaries from timing out the
			// connection.
			if _, err := fmt.Fprintf(resp, ":\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
