package server

import (
	"errors"
	"net/http"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/gin-gonic/gin"
)

type deviceResponse struct {
	driver.Identity
	DeviceUID string `json:"device_uid"`
	ModelUID  string `json:"model_uid"`
}

type formatsResponse struct {
	Channels          int                       `json:"channels"`
	BitsPerSample     int                       `json:"bits_per_sample"`
	DefaultSampleRate float64                   `json:"default_sample_rate"`
	Formats           []driver.FormatDescriptor `json:"formats"`
}

type endpointResponse struct {
	Direction string                   `json:"direction"`
	State     string                   `json:"state"`
	Format    *driver.FormatDescriptor `json:"format,omitempty"`
}

type timestampResponse struct {
	driver.TimeStamp
	SamplePosition uint64 `json:"sample_position"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sokuji",
		"device":  s.device.Identity().DeviceUID(),
	})
}

func (s *Server) handleDevice(c *gin.Context) {
	id := s.device.Identity()
	c.JSON(http.StatusOK, deviceResponse{
		Identity:  id,
		DeviceUID: id.DeviceUID(),
		ModelUID:  id.ModelUID(),
	})
}

func (s *Server) handleFormats(c *gin.Context) {
	n := s.device.Negotiator()
	c.JSON(http.StatusOK, formatsResponse{
		Channels:          n.Channels(),
		BitsPerSample:     driver.BitsPerSample,
		DefaultSampleRate: n.DefaultRate(),
		Formats:           n.Supported(),
	})
}

func (s *Server) handleGetFormat(c *gin.Context) {
	f, ok := s.device.Format()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no format negotiated"})
		return
	}

	c.JSON(http.StatusOK, f)
}

// handleNegotiate negotiates both endpoints, or only the one named by the
// direction query parameter.
func (s *Server) handleNegotiate(c *gin.Context) {
	var req driver.FormatDescriptor
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid format request: " + err.Error()})
		return
	}

	negotiate := s.device.Negotiate
	if d := c.Query("direction"); d != "" {
		dir, err := driver.ParseDirection(d)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		negotiate = s.device.Endpoint(dir).Negotiate
	}

	f, err := negotiate(req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, f)
}

func (s *Server) handleStart(c *gin.Context) {
	s.transition(c, (*driver.Endpoint).Start)
}

func (s *Server) handleStop(c *gin.Context) {
	s.transition(c, (*driver.Endpoint).Stop)
}

func (s *Server) transition(c *gin.Context, op func(*driver.Endpoint) error) {
	dir, err := driver.ParseDirection(c.Param("direction"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	e := s.device.Endpoint(dir)
	if err := op(e); err != nil {
		s.writeError(c, err)
		return
	}

	resp := endpointResponse{Direction: dir.String(), State: e.State().String()}
	if f, ok := e.Format(); ok {
		resp.Format = &f
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.device.Stats())
}

func (s *Server) handleTimestamp(c *gin.Context) {
	ts, err := s.device.ZeroTimeStamp()
	if err != nil {
		s.writeError(c, err)
		return
	}

	pos, err := s.device.Clock().SamplePosition()
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, timestampResponse{TimeStamp: ts, SamplePosition: pos})
}

// writeError maps driver sentinels to status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, driver.ErrFormatUnsupported):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, driver.ErrInvalidState):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
