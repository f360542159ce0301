package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/session"
	"github.com/taskboard/taskboard/internal/store"
)

const storeKey = "store"

type commentRequest struct {
	Content string `json:"content"`
}

type assigneesRequest struct {
	UserIDs []string `json:"user_ids"`
}

type idResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error  string `json:"error"`
	TaskID string `json:"task_id,omitempty"`
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.healthAction)
	router.GET("/realtime", s.realtimeAction)

	api := router.Group("/api", s.sessionMiddleware)
	api.GET("/snapshot", s.snapshotAction)
	api.GET("/stats", s.statsAction)

	tasks := api.Group("/tasks")
	tasks.GET("", s.listTasksAction)
	tasks.POST("", s.createTaskAction)
	tasks.GET("/:id", s.getTaskAction)
	tasks.PATCH("/:id", s.updateTaskAction)
	tasks.DELETE("/:id", s.deleteTaskAction)
	tasks.POST("/:id/comments", s.addCommentAction)
	tasks.POST("/:id/subtasks/:sid/toggle", s.toggleSubtaskAction)
	tasks.PUT("/:id/assignees", s.updateAssigneesAction)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// sessionMiddleware resolves the caller's store. An unknown user is
// rejected; a missing header falls through to the anonymous store.
func (s *Server) sessionMiddleware(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserHeader))

	st, err := s.storeFor(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrUnknownUser) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Printf("Failed to open session for %s: %v", userID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "failed to open session"})
		return
	}

	c.Set(storeKey, st)
	c.Next()
}

func storeOf(c *gin.Context) *store.Store {
	return c.MustGet(storeKey).(*store.Store)
}

// respondError maps store errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var pwe *store.PartialWriteError
	switch {
	case errors.Is(err, store.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing " + UserHeader + " header"})
	case errors.Is(err, store.ErrTaskNotFound), errors.Is(err, store.ErrSubtaskNotFound), errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrEmptyComment):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &pwe):
		s.logger.Printf("Partial write: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), TaskID: pwe.TaskID})
	default:
		s.logger.Printf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) healthAction(c *gin.Context) {
	s.clientsMu.RLock()
	clients := len(s.clients)
	s.clientsMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"clients":  clients,
		"sessions": s.SessionCount(),
		"realtime": s.anonRec.Stats(),
	})
}

func (s *Server) snapshotAction(c *gin.Context) {
	c.JSON(http.StatusOK, storeOf(c).Snapshot())
}

func (s *Server) statsAction(c *gin.Context) {
	c.JSON(http.StatusOK, storeOf(c).Snapshot().Stats(time.Now()))
}

func (s *Server) listTasksAction(c *gin.Context) {
	filter := store.TaskFilter{
		Status:      model.Status(c.Query("status")),
		Priority:    model.Priority(c.Query("priority")),
		AssigneeID:  c.Query("assignee"),
		WorkspaceID: c.Query("workspace"),
		Tag:         c.Query("tag"),
	}
	tasks := storeOf(c).Snapshot().Filter(filter)
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) getTaskAction(c *gin.Context) {
	task, ok := storeOf(c).Snapshot().Task(c.Param("id"))
	if !ok {
		s.respondError(c, store.ErrTaskNotFound)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) createTaskAction(c *gin.Context) {
	var in model.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request structure: " + err.Error()})
		return
	}

	id, err := storeOf(c).CreateTask(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (s *Server) updateTaskAction(c *gin.Context) {
	var upd model.TaskUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request structure: " + err.Error()})
		return
	}

	if err := storeOf(c).UpdateTask(c.Request.Context(), c.Param("id"), upd); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteTaskAction(c *gin.Context) {
	if err := storeOf(c).DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addCommentAction(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request structure: " + err.Error()})
		return
	}

	id, err := storeOf(c).AddComment(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (s *Server) toggleSubtaskAction(c *gin.Context) {
	if err := storeOf(c).ToggleSubtask(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateAssigneesAction(c *gin.Context) {
	var req assigneesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request structure: " + err.Error()})
		return
	}

	if err := storeOf(c).UpdateAssignees(c.Request.Context(), c.Param("id"), req.UserIDs); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
