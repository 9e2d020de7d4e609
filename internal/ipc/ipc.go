// Package ipc implements the control surface the CLI uses to talk to a
// running daemon, served as a gin router over a Unix domain socket rather
// than TCP.
package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/telemetry"
	"github.com/hometree/hometree/internal/watcher"
)

// Server exposes the daemon's control surface.
type Server struct {
	SocketPath string
	Watcher    *watcher.Watcher
	Reload     func() (config.V, error) // re-reads and validates configuration from disk

	engine   *gin.Engine
	listener net.Listener
	server   *http.Server
}

// NewServer builds the gin router for the control surface. The router is
// not yet listening; call Start to bind the socket.
func NewServer(socketPath string, w *watcher.Watcher, reload func() (config.V, error)) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestMetrics)

	s := &Server{SocketPath: socketPath, Watcher: w, Reload: reload, engine: r}

	r.GET("/status", s.handleStatus)
	r.POST("/reload", s.handleReload)
	r.POST("/pause", s.handlePause)
	r.POST("/resume", s.handleResume)
	r.POST("/flush", s.handleFlush)

	return s
}

// Start removes any stale socket file, binds a new Unix listener, and
// serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.SocketPath); err != nil {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.SocketPath, err)
	}
	if err := os.Chmod(s.SocketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// requestMetrics records every control-socket request by endpoint and
// outcome, mirroring the per-label counter style hometree uses elsewhere
// for gin-routed requests.
func requestMetrics(c *gin.Context) {
	c.Next()
	outcome := "ok"
	if c.Writer.Status() >= 400 {
		outcome = "error"
	}
	telemetry.IPCRequestsTotal.WithLabelValues(c.FullPath(), outcome).Inc()
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.Watcher.StatusSnapshot()
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleReload(c *gin.Context) {
	newCfg, err := s.Reload()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true, "watch": newCfg.Watch})
}

type pauseRequest struct {
	DurationMs int    `json:"duration_ms"`
	Reason     string `json:"reason"`
}

func (s *Server) handlePause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Watcher.Pause(time.Duration(req.DurationMs)*time.Millisecond, req.Reason)
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.Watcher.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleFlush(c *gin.Context) {
	s.Watcher.Flush()
	c.JSON(http.StatusOK, gin.H{"flushed": true})
}

// Client is a thin wrapper the CLI uses to talk to a running daemon over
// its Unix socket.
type Client struct {
	http *http.Client
}

// NewClient returns a client whose requests dial socketPath; nothing is
// dialed until the first request, which fails if no daemon is listening.
func NewClient(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(method, path string, body any, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		data, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}
		req, err = http.NewRequest(method, "http://unix"+path, bytes.NewReader(data))
	} else {
		req, err = http.NewRequest(method, "http://unix"+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control socket unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, errBody.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Status queries the daemon's watcher status.
func (c *Client) Status() (watcher.Status, error) {
	var st watcher.Status
	err := c.do(http.MethodGet, "/status", nil, &st)
	return st, err
}

// ReloadConfig asks the daemon to re-read and apply its configuration.
func (c *Client) ReloadConfig() error {
	return c.do(http.MethodPost, "/reload", nil, nil)
}

// Pause asks the daemon to inhibit staging for duration with reason.
func (c *Client) Pause(duration time.Duration, reason string) error {
	return c.do(http.MethodPost, "/pause", pauseRequest{DurationMs: int(duration.Milliseconds()), Reason: reason}, nil)
}

// Resume clears an active pause.
func (c *Client) Resume() error {
	return c.do(http.MethodPost, "/resume", nil, nil)
}

// Flush requests an immediate debounce flush.
func (c *Client) Flush() error {
	return c.do(http.MethodPost, "/flush", nil, nil)
}
