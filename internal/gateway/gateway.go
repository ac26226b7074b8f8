// Package gateway exposes the bus over HTTP so that non-D-Bus clients
// (dashboards, scripts, phones) can list nodes, publish on topics and call
// services with plain REST requests.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nros/internal/bus"
	"nros/internal/config"
	"nros/internal/logging"
	"nros/internal/pubsub"
)

// Bridge is the part of the bus the gateway needs. Satisfied by busBridge in
// production and by fakes in tests.
type Bridge interface {
	Nodes(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, node string) (*pubsub.Description, error)
	Publish(topic string, payload []byte) (string, error)
	Call(ctx context.Context, node, service string, request []byte) ([]byte, error)
}

// busBridge adapts a bus connection to the Bridge interface.
type busBridge struct {
	conn   *bus.Conn
	pub    *pubsub.Publisher
	caller *pubsub.Caller
}

// NewBridge wraps a bus connection for the gateway.
func NewBridge(conn *bus.Conn) Bridge {
	return &busBridge{
		conn:   conn,
		pub:    pubsub.NewPublisher(conn),
		caller: pubsub.NewCaller(conn),
	}
}

func (b *busBridge) Nodes(ctx context.Context) ([]string, error) {
	return b.conn.Nodes(ctx)
}

func (b *busBridge) Describe(ctx context.Context, node string) (*pubsub.Description, error) {
	return pubsub.Describe(ctx, b.conn, node)
}

func (b *busBridge) Publish(topic string, payload []byte) (string, error) {
	return b.pub.Publish(topic, payload)
}

func (b *busBridge) Call(ctx context.Context, node, service string, request []byte) ([]byte, error) {
	return b.caller.Call(ctx, node, service, request)
}

// Server is the REST gateway.
type Server struct {
	cfg    config.GatewayConfig
	bridge Bridge
	router *gin.Engine
}

// New builds the gateway around a bridge.
func New(cfg config.GatewayConfig, bridge Bridge) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, bridge: bridge}

	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	router.GET("/healthz", s.health)
	v1 := router.Group("/v1")
	{
		v1.GET("/nodes", s.listNodes)
		v1.GET("/nodes/:name", s.describeNode)
		v1.POST("/nodes/:name/services/:service", s.callService)
		v1.POST("/topics/*topic", s.publish)
	}

	s.router = router
	return s
}

// Handler exposes the underlying HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Gateway("listening on %s", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestID tags every request with a correlation id.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNodes(c *gin.Context) {
	nodes, err := s.bridge.Nodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if nodes == nil {
		nodes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (s *Server) describeNode(c *gin.Context) {
	desc, err := s.bridge.Describe(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(statusForBusError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (s *Server) publish(c *gin.Context) {
	topic := c.Param("topic")
	if len(topic) > 0 && topic[0] == '/' {
		topic = topic[1:]
	}
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic name missing"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.bridge.Publish(topic, payload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"topic": topic, "id": id})
}

func (s *Server) callService(c *gin.Context) {
	request, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := s.bridge.Call(c.Request.Context(), c.Param("name"), c.Param("service"), request)
	if err != nil {
		c.JSON(statusForBusError(err), gin.H{"error": err.Error()})
		return
	}
	if json.Valid(reply) {
		c.Data(http.StatusOK, "application/json", reply)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", reply)
}

// statusForBusError maps D-Bus level failures onto HTTP statuses: unknown
// names and services are 404s, everything else is a bad gateway.
func statusForBusError(err error) int {
	var derr dbus.Error
	if errors.As(err, &derr) {
		switch derr.Name {
		case pubsub.ErrUnknownService,
			"org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.NameHasNoOwner":
			return http.StatusNotFound
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
