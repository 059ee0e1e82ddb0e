// Package http wires the task control plane and the push channel to gin routes.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ytgrab/internal/domain"
	"ytgrab/internal/downloader"
	"ytgrab/internal/notify"
	"ytgrab/internal/repository"
)

// Handler exposes download manager operations over HTTP and WebSocket.
type Handler struct {
	manager downloader.Manager
	hub     *notify.Hub
	log     *logrus.Logger
}

func NewHandler(manager downloader.Manager, hub *notify.Hub, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		manager: manager,
		hub:     hub,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/downloads", h.createDownload)
		api.GET("/tasks", h.listTasks)
		api.GET("/tasks/:id", h.getTask)
		api.DELETE("/tasks", h.clearAllTasks)
		api.POST("/tasks/:id/pause", h.pauseTask)
		api.POST("/tasks/:id/resume", h.resumeTask)
		api.POST("/tasks/:id/cancel", h.cancelTask)
		api.GET("/ws", h.websocket)
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type createDownloadRequest struct {
	URL        string            `json:"url" binding:"required"`
	Format     domain.TaskFormat `json:"format"`
	OutputPath string            `json:"output_path"`
}

func (h *Handler) createDownload(c *gin.Context) {
	var req createDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Format == "" {
		req.Format = domain.FormatVideo
	}

	task, err := h.manager.Download(c.Request.Context(), req.URL, req.Format, req.OutputPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks, err := h.manager.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) clearAllTasks(c *gin.Context) {
	if err := h.manager.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handler) pauseTask(c *gin.Context) {
	id := c.Param("id")
	if !h.manager.Pause(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot pause task (not active or not found)"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused", "task_id": id})
}

func (h *Handler) resumeTask(c *gin.Context) {
	id := c.Param("id")
	if !h.manager.Resume(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot resume task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed", "task_id": id})
}

func (h *Handler) cancelTask(c *gin.Context) {
	id := c.Param("id")
	if !h.manager.Cancel(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot cancel task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled", "task_id": id})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket attaches a subscriber to the push channel. The server only
// pushes; the single inbound signal is a "ping" text, answered with "pong".
func (h *Handler) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	done := make(chan struct{})
	pings := make(chan struct{}, 4)
	go func() {
		defer close(done)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && string(msg) == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	// single writer: events and pongs are both sent from this goroutine
	for {
		select {
		case <-done:
			return
		case <-pings:
			if err := conn.WriteJSON(notify.Event{Type: notify.EventPong}); err != nil {
				h.log.Warnf("websocket write: %v", err)
				return
			}
		case ev := <-sub:
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Warnf("websocket write: %v", err)
				return
			}
		}
	}
}
