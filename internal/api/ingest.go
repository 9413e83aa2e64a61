package api

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/videowait"
)

const maxIngestBody = 1 << 20 // 1 MiB

// IngestAudio accepts an audio detection payload and buffers it for
// correlation with camera sightings.
func (s *Server) IngestAudio(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxIngestBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unreadable request body",
		})
	}

	if err := s.pipe.HandleAudioDetection(body, time.Now()); err != nil {
		s.logger.Debug("audio payload rejected", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	return c.NoContent(http.StatusAccepted)
}

type videoResultRequest struct {
	Status string  `json:"status"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Index  int     `json:"index"`
	Error  string  `json:"error"`
}

// VideoResult records a video classification state for an event id.
func (s *Server) VideoResult(c echo.Context) error {
	eventID := c.Param("id")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing event id",
		})
	}

	var req videoResultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	switch videowait.Status(req.Status) {
	case videowait.StatusPending, videowait.StatusProcessing,
		videowait.StatusCompleted, videowait.StatusFailed:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unknown status",
		})
	}

	s.pipe.HandleVideoResult(c.Request().Context(), eventID, datastore.VideoResult{
		Status: req.Status,
		Label:  req.Label,
		Score:  req.Score,
		Index:  req.Index,
		Error:  req.Error,
	})
	return c.NoContent(http.StatusAccepted)
}
