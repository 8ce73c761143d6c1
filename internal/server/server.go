// Package server exposes the HTTP API and websocket stream endpoints.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pairflow/internal/broadcast"
	"pairflow/internal/export"
	"pairflow/internal/metrics"
	"pairflow/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Streams are read-only market data, no credentials cross this boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Server wires HTTP routes onto a running pipeline.
type Server struct {
	pipe   *pipeline.Pipeline
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router. The pipeline must already be constructed; it does
// not need to be running for read-only routes to respond.
func New(pipe *pipeline.Pipeline, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{pipe: pipe, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/alerts", s.getAlerts)
		api.GET("/settings", s.getSettings)
		api.POST("/settings", s.postSettings)
		api.GET("/export", s.getExport)
		api.GET("/stationarity", s.getStationarity)
	}

	s.engine.GET("/ws/:channel", s.handleStream)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Health())
}

func (s *Server) getAlerts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"alerts": s.pipe.Alerts().Recent(limit)})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Settings().Current())
}

// postSettings applies a partial update. Fields absent from the body keep
// their current value; the merged record is validated as a whole before it
// replaces the active one.
func (s *Server) postSettings(c *gin.Context) {
	next := s.pipe.Settings().Current()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}
	if err := s.pipe.Settings().Update(next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.pipe.Settings().Current())
}

func (s *Server) getExport(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records := export.ToRecords(s.pipe.Snapshots(limit))
	name := fmt.Sprintf("analytics_%s.%s", time.Now().UTC().Format("20060102T150405Z"), format.Extension())

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, records); err != nil {
		s.logger.Error("export write failed", zap.String("format", string(format)), zap.Error(err))
	}
}

func (s *Server) getStationarity(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Analytics().Stationarity())
}

func (s *Server) handleStream(c *gin.Context) {
	channel := broadcast.Channel(c.Param("channel"))
	if !channel.IsValid() {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown channel: %s", channel)})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := s.pipe.Hub().Subscribe(channel)
	metrics.Subscribers.Inc()
	s.logger.Info("stream subscriber connected", zap.String("channel", string(channel)))

	done := make(chan struct{})
	go s.readUntilClose(conn, done)
	s.writeLoop(conn, sub, done)

	s.pipe.Hub().Unsubscribe(sub)
	metrics.Subscribers.Dec()
	_ = conn.Close()
	s.logger.Info("stream subscriber disconnected", zap.String("channel", string(channel)))
}

// readUntilClose drains client frames so close and pong control messages are
// processed, then signals the writer.
func (s *Server) readUntilClose(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sub *broadcast.Subscriber, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
