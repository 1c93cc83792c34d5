package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/metrics"
	"github.com/rotelhex/rotelhex/internal/protocol"
	"github.com/rotelhex/rotelhex/internal/rotel"
	"github.com/rotelhex/rotelhex/internal/version"
)

// DisplayView is the JSON form of the front panel
type DisplayView struct {
	Source      string `json:"source"`
	Record      string `json:"record"`
	SourceHex   string `json:"source_hex"`
	RecordHex   string `json:"record_hex"`
	BasicSource string `json:"basic_source"`
	BasicRecord string `json:"basic_record"`
	Power       string `json:"power"`
	LabelChange bool   `json:"label_change"`
	CharIndex   *int   `json:"char_index,omitempty"`
	Char        string `json:"char,omitempty"`
}

// viewOf renders a snapshot
func viewOf(snap display.Snapshot) DisplayView {
	v := DisplayView{
		Source:      snap.Source.String(),
		Record:      snap.Record.String(),
		SourceHex:   snap.Source.Hex(),
		RecordHex:   snap.Record.Hex(),
		BasicSource: snap.BasicSource.String(),
		BasicRecord: snap.BasicRecord.String(),
		Power:       snap.PowerState.String(),
		LabelChange: snap.LabelChange,
	}
	if snap.CharIndex >= 0 {
		idx := snap.CharIndex
		v.CharIndex = &idx
		v.Char = string(protocol.DecodeChar(snap.Char))
	}
	return v
}

// LabelRequest is the body of POST /api/label
type LabelRequest struct {
	Function string `json:"function" binding:"required"`
	Label    string `json:"label"`
}

// errorResponse is the body of every failed API call
type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.registry)))
	}
	r.GET("/ws", s.hub.ServeWS)

	api := r.Group("/api")
	api.GET("/display", s.getDisplay)
	api.GET("/commands", s.listCommands)

	commands := api.Group("")
	if s.limiter != nil {
		commands.Use(s.limiter.Middleware())
	}
	commands.POST("/commands/:name", s.sendCommand)
	commands.POST("/source/:function", s.setSource)
	commands.POST("/record/:function", s.setRecord)
	commands.POST("/label", s.setLabel)

	return r
}

// requestLogger logs each request and counts it
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		logging.LogHTTPRequest(c.ClientIP(), c.Request.Method, c.Request.URL.Path, status, time.Since(start).Milliseconds())

		if s.metrics != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
	}
}

func (s *Server) getDisplay(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(s.ctrl.Display().Snapshot()))
}

func (s *Server) listCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commands": s.ctrl.ValidCommands(),
		"sources":  s.ctrl.BasicSources(),
	})
}

func (s *Server) sendCommand(c *gin.Context) {
	name := c.Param("name")
	s.run(c, func(ctx context.Context) error {
		return s.ctrl.SendNamed(ctx, name)
	})
}

func (s *Server) setSource(c *gin.Context) {
	fn := c.Param("function")
	s.run(c, func(ctx context.Context) error {
		return s.ctrl.SetSource(ctx, fn)
	})
}

func (s *Server) setRecord(c *gin.Context) {
	fn := c.Param("function")
	s.run(c, func(ctx context.Context) error {
		return s.ctrl.SetRecord(ctx, fn)
	})
}

func (s *Server) setLabel(c *gin.Context) {
	var req LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.run(c, func(ctx context.Context) error {
		return s.ctrl.SetLabel(ctx, req.Function, req.Label)
	})
}

// run executes op with the request context and writes the outcome
func (s *Server) run(c *gin.Context, op func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.CommandTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		c.JSON(statusFor(err), errorResponse{
			Error: err.Error(),
			Hint:  rotel.GetShortErrorMessage(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"display": viewOf(s.ctrl.Display().Snapshot()),
	})
}

// statusFor maps an operation error to an HTTP status
func statusFor(err error) int {
	switch {
	case rotel.IsInvalidArgument(err):
		return http.StatusBadRequest
	case rotel.IsChannelUnavailable(err), rotel.IsClosed(err):
		return http.StatusServiceUnavailable
	case rotel.IsFraming(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
