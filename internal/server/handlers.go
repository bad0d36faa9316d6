package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// channelView is the per-channel slice of the status payload.
type channelView struct {
	Index   int     `json:"index"`
	Enabled bool    `json:"enabled"`
	Gain    float32 `json:"gain"`
	Peak    float32 `json:"peak"`
}

// statusView is the JSON shape of GET /api/v1/status.
type statusView struct {
	Recording      bool          `json:"recording"`
	Mode           string        `json:"mode"`
	Multitrack     bool          `json:"multitrack"`
	Device         string        `json:"device,omitempty"`
	ArtifactPath   string        `json:"artifact_path,omitempty"`
	ChannelCount   int           `json:"channel_count"`
	Channels       []channelView `json:"channels"`
	BytesCaptured  int64         `json:"bytes_captured"`
	FramesWritten  int64         `json:"frames_written"`
	DroppedBlocks  int64         `json:"dropped_blocks"`
	AppendFailures int64         `json:"append_failures"`
}

// deviceView is the JSON shape of one enumerated capture device.
type deviceView struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Default     bool     `json:"default"`
	MaxChannels int      `json:"max_channels"`
	SampleRate  int      `json:"sample_rate"`
	Formats     []string `json:"formats"`
}

type startRecordingRequest struct {
	Multitrack *bool `json:"multitrack"`
}

type channelPatchRequest struct {
	Enabled *bool    `json:"enabled"`
	Gain    *float32 `json:"gain"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "tapehead",
	})
}

// handleStatus reports the live session state.
func (s *Server) handleStatus(c *gin.Context) {
	st := s.control.Status()

	// Before the first recording the controller has no channel count of
	// its own; the negotiated settings vectors do.
	count := st.ChannelCount
	if count == 0 {
		count = len(st.Enabled)
	}

	view := statusView{
		Recording:      st.Recording,
		Mode:           st.Mode.String(),
		Multitrack:     st.Multitrack,
		Device:         st.Device,
		ArtifactPath:   st.ArtifactPath,
		ChannelCount:   count,
		Channels:       make([]channelView, 0, len(st.Enabled)),
		BytesCaptured:  st.BytesCaptured,
		FramesWritten:  st.FramesWritten,
		DroppedBlocks:  st.DroppedBlocks,
		AppendFailures: st.AppendFailures,
	}
	for i, enabled := range st.Enabled {
		ch := channelView{Index: i, Enabled: enabled}
		if i < len(st.Gains) {
			ch.Gain = st.Gains[i]
		}
		if i < len(st.Peaks) {
			ch.Peak = st.Peaks[i]
		}
		view.Channels = append(view.Channels, ch)
	}

	c.JSON(http.StatusOK, view)
}

// handleDevices enumerates the capture devices currently visible.
func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.control.Devices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			Name:        d.Name,
			Kind:        d.Kind.String(),
			Default:     d.IsDefault,
			MaxChannels: d.MaxChannels,
			SampleRate:  d.SampleRate,
			Formats:     d.Formats,
		})
	}

	c.JSON(http.StatusOK, gin.H{"devices": views})
}

// handleRescan queues a device renegotiation.
func (s *Server) handleRescan(c *gin.Context) {
	s.control.Renegotiate()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// handleStartRecording queues a recording start. The start itself is
// asynchronous, so failures surface as session events rather than here.
func (s *Server) handleStartRecording(c *gin.Context) {
	var req startRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Multitrack != nil {
		s.control.SetMultitrack(*req.Multitrack)
	}
	s.control.StartRecording()

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"multitrack": s.control.Multitrack(),
	})
}

// handleStopRecording queues a recording stop.
func (s *Server) handleStopRecording(c *gin.Context) {
	s.control.StopRecording()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// handlePatchChannel updates the enabled flag and/or gain of one channel.
func (s *Server) handlePatchChannel(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel index"})
		return
	}

	var req channelPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Enabled == nil && req.Gain == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request must set enabled or gain"})
		return
	}

	if req.Enabled != nil {
		if err := s.control.SetChannelEnabled(index, *req.Enabled); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Gain != nil {
		if err := s.control.SetChannelGain(index, *req.Gain); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	st := s.control.Status()
	view := channelView{Index: index}
	if index < len(st.Enabled) {
		view.Enabled = st.Enabled[index]
	}
	if index < len(st.Gains) {
		view.Gain = st.Gains[index]
	}
	if index < len(st.Peaks) {
		view.Peak = st.Peaks[index]
	}

	c.JSON(http.StatusOK, view)
}
