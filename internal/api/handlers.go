package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"niftiwork/internal/convert"
	"niftiwork/internal/engine"
	"niftiwork/internal/resolve"
	"niftiwork/internal/task"
)

type startTaskResponse struct {
	TaskID     string      `json:"task_id"`
	InstanceID string      `json:"instance_id"`
	Status     task.Status `json:"status"`
	TaskURL    string      `json:"task_url"`
}

type taskResponse struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instance_id"`
	Status     task.Status     `json:"status"`
	Engine     engine.Engine   `json:"engine"`
	CreatedAt  string          `json:"created_at"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Report     *convert.Report `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type API struct {
	taskManager *task.Manager
}

func NewAPI(taskManager *task.Manager) *API {
	return &API{taskManager: taskManager}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/instances/:id/tasks", a.StartTask)
		api.GET("/instances/:id/tasks", a.ListTasks)
		api.GET("/tasks", a.ListTasks)
		api.GET("/tasks/:id", a.GetTask)
	}
	router.GET("/healthz", a.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// StartTask queues a conversion of one instance
func (a *API) StartTask(c *gin.Context) {
	instanceID := c.Param("id")
	started, err := a.taskManager.Start(c.Request.Context(), instanceID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, resolve.ErrInstanceNotFound):
			status = http.StatusNotFound
		case errors.Is(err, resolve.ErrInvalidInstanceID), errors.Is(err, resolve.ErrBadManifest):
			status = http.StatusBadRequest
		case errors.Is(err, task.ErrInstanceBusy):
			status = http.StatusConflict
		case errors.Is(err, task.ErrBusy):
			status = http.StatusServiceUnavailable
		}
		log.Warn().Str("instance", instanceID).Err(err).Int("status", status).Msg("rejecting conversion task")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, startTaskResponse{
		TaskID:     started.ID,
		InstanceID: started.InstanceID,
		Status:     started.Status,
		TaskURL:    "/api/v1/tasks/" + started.ID,
	})
}

// GetTask returns task status and its per-item report
func (a *API) GetTask(c *gin.Context) {
	id := c.Param("id")
	if foundTask, ok := a.taskManager.GetTask(id); ok {
		c.JSON(http.StatusOK, toTaskResponse(foundTask))
		return
	}
	log.Warn().Str("task_id", id).Msg("task not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": task.ErrTaskNotFound.Error()})
}

// ListTasks lists tasks newest first, optionally for one instance
func (a *API) ListTasks(c *gin.Context) {
	tasks := a.taskManager.ListTasks(c.Param("id"))
	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": resp})
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "busy": a.taskManager.IsBusy()})
}

func toTaskResponse(taskEntity *task.Task) taskResponse {
	resp := taskResponse{
		ID:         taskEntity.ID,
		InstanceID: taskEntity.InstanceID,
		Status:     taskEntity.Status,
		Engine:     taskEntity.Engine,
		CreatedAt:  taskEntity.CreatedAt.UTC().Format(time.RFC3339),
		Report:     taskEntity.Report,
		Error:      taskEntity.Error,
	}
	if taskEntity.FinishedAt != nil {
		resp.FinishedAt = taskEntity.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
