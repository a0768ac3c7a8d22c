package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	fileutil "github.com/rkrumins/file-processing-service/internal/file"
	"github.com/rkrumins/file-processing-service/internal/task"
)

type uploadResponse struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

type statusResponse struct {
	ID               string      `json:"id"`
	OriginalFilename string      `json:"original_filename"`
	Status           task.Status `json:"status"`
	Progress         int         `json:"progress"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	CreatedAt        string      `json:"created_at"`
}

// API exposes the task lifecycle over HTTP.
type API struct {
	manager     *task.Manager
	uploadDir   string
	storageType string
}

func NewAPI(manager *task.Manager, uploadDir, storageType string) *API {
	return &API{manager: manager, uploadDir: uploadDir, storageType: storageType}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.POST("/upload", a.Upload)
	router.GET("/status/:task_id", a.Status)
	router.GET("/download/:task_id", a.Download)
	router.GET("/health", a.Health)
}

// Upload accepts a multipart file, writes it durably to the upload
// directory and submits a processing task. The response returns immediately
// with the task id; the client polls /status until the task is terminal.
func (a *API) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warn().Err(err).Msg("upload without file field")
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Warn().Str("filename", fileHeader.Filename).Err(err).Msg("open uploaded file failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer src.Close()

	destination := fileutil.TimestampedPath(a.uploadDir, fileHeader.Filename)
	if err := fileutil.CopyAtomic(destination, src); err != nil {
		log.Error().Str("filename", fileHeader.Filename).Err(err).Msg("save uploaded file failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save file"})
		return
	}

	taskID, err := a.manager.Submit(c.Request.Context(), fileHeader.Filename, destination)
	if err != nil {
		if errors.Is(err, task.ErrEmptyFilename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Str("filename", fileHeader.Filename).Err(err).Msg("submit task failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create task"})
		return
	}

	c.JSON(http.StatusAccepted, uploadResponse{
		TaskID:   taskID,
		Filename: fileHeader.Filename,
		Message:  fmt.Sprintf("File %q received. Processing delegated.", fileHeader.Filename),
	})
}

// Status returns a point-in-time snapshot of the task.
func (a *API) Status(c *gin.Context) {
	id := c.Param("task_id")
	snapshot, err := a.manager.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			log.Warn().Str("task_id", id).Msg("task not found on status")
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		log.Error().Str("task_id", id).Err(err).Msg("status lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(snapshot))
}

// Download serves the processed artifact once the task is complete.
func (a *API) Download(c *gin.Context) {
	id := c.Param("task_id")
	artifact, err := a.manager.Artifact(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			log.Warn().Str("task_id", id).Msg("task not found on download")
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, task.ErrTaskNotReady):
			log.Warn().Str("task_id", id).Msg("download before completion")
			c.JSON(http.StatusBadRequest, gin.H{"error": "task not complete"})
		default:
			log.Error().Str("task_id", id).Err(err).Msg("artifact lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "artifact lookup failed"})
		}
		return
	}
	log.Info().Str("task_id", id).Str("path", artifact.Path).Msg("serving artifact download")
	c.FileAttachment(artifact.Path, artifact.Filename)
}

// Health reports readiness and the configured storage backend.
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":      "Service running.",
		"storage_type": a.storageType,
	})
}

func toStatusResponse(t task.Task) statusResponse {
	return statusResponse{
		ID:               t.ID,
		OriginalFilename: t.OriginalFilename,
		Status:           t.Status,
		Progress:         t.Progress,
		ErrorMessage:     t.ErrorMessage,
		CreatedAt:        t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
