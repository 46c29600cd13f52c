package switchboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zulandar/switchboard/internal/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsSender adapts one websocket connection to the registry's sender
// interface. gorilla/websocket permits a single concurrent writer, so all
// writes go through a mutex.
type wsSender struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (s *wsSender) WriteEvent(ev wire.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(ev)
}

func (s *wsSender) Close() error {
	return s.conn.Close()
}

// StartOpts holds parameters for Start.
type StartOpts struct {
	Port       int
	DigestCron string // cron expression for the periodic stats digest, empty disables
	Registry   *Registry
	Out        io.Writer
}

// Start runs the switchboard HTTP server until ctx is cancelled, then
// shuts it down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Registry == nil {
		return fmt.Errorf("switchboard: start: registry is required")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	registerRoutes(r, opts.Registry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if opts.DigestCron != "" {
		go digestLoop(ctx, opts.DigestCron, opts.Registry, opts.Out)
	}

	fmt.Fprintf(opts.Out, "switchboard listening on %s\n", srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("switchboard: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("switchboard: shutdown: %w", err)
	}
	fmt.Fprintln(opts.Out, "switchboard stopped")
	return nil
}

func registerRoutes(r *gin.Engine, reg *Registry) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.Presence())
	})
	r.GET("/stats", func(c *gin.Context) {
		s := reg.Stats()
		c.JSON(http.StatusOK, gin.H{
			"connections":  s.Connections,
			"online_users": s.OnlineUsers,
			"relayed":      s.Relayed,
		})
	})
	r.POST("/broadcast", func(c *gin.Context) {
		var body wire.Broadcast
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ev, err := wire.NewEvent(wire.EventBroadcast, body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		reg.Broadcast(ev)
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	})
	r.GET("/ws", func(c *gin.Context) {
		serveWS(reg, c.Writer, c.Request)
	})
}

// serveWS upgrades the request and runs the connection's read loop. One
// goroutine per connection; the registry handles fan-out.
func serveWS(reg *Registry, w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("switchboard: upgrade: %v", err)
		return
	}
	connID := uuid.NewString()
	s := &wsSender{conn: conn}
	reg.Register(connID, s)
	defer func() {
		reg.Unregister(connID)
		s.Close()
	}()

	for {
		var ev wire.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("switchboard: conn %s: read: %v", connID, err)
			}
			return
		}
		reg.HandleEvent(connID, ev)
	}
}
