package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskforge/pkg/handlers/shell"
	"taskforge/pkg/models"
	"taskforge/pkg/queue"
)

// EnqueueRequest is the Producer API payload for POST /api/v1/jobs
// (spec.md §6.2 "Producer API").
type EnqueueRequest struct {
	JobName     string          `json:"job_name" binding:"required"`
	JobData     json.RawMessage `json:"job_data"`
	Priority    int             `json:"priority"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

// JobResponse is the API representation of a Job.
type JobResponse struct {
	ID           int64      `json:"id"`
	JobName      string     `json:"job_name"`
	Priority     int        `json:"priority"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Retries      int        `json:"retries"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func toJobResponse(j *models.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		JobName:      j.JobName,
		Priority:     j.Priority,
		Status:       string(j.Status),
		CreatedAt:    j.CreatedAt,
		ScheduledAt:  j.ScheduledAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		Retries:      j.Retries,
		ErrorMessage: j.ErrorMessage,
	}
}

// createJob handles POST /api/v1/jobs.
func (s *Server) createJob(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.validator.ValidateJobName(req.JobName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.ValidatePayloadSize(req.JobData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.ValidatePriority(req.Priority); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.JobName == "shell.command" {
		var cmd shell.Command
		if err := json.Unmarshal(req.JobData, &cmd); err == nil {
			command := strings.TrimSpace(cmd.Path + " " + strings.Join(cmd.Args, " "))
			if err := s.validator.ValidateShellCommand(command); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
	}

	opts := queue.EnqueueOptions{Priority: req.Priority}
	if req.ScheduledAt != nil {
		opts.ScheduledAt = *req.ScheduledAt
	}

	job, err := s.engine.Enqueue(c.Request.Context(), req.JobName, req.JobData, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toJobResponse(job))
}

// listJobs handles GET /api/v1/jobs.
func (s *Server) listJobs(c *gin.Context) {
	limit := 50
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	var status *models.Status
	if v := c.Query("status"); v != "" {
		st := models.Status(v)
		status = &st
	}

	jobs, err := s.engine.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]JobResponse, len(jobs))
	for i := range jobs {
		resp[i] = toJobResponse(&jobs[i])
	}
	c.JSON(http.StatusOK, gin.H{"jobs": resp, "count": len(resp)})
}

// getJob handles GET /api/v1/jobs/:id.
func (s *Server) getJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := s.engine.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

// cancelJob handles DELETE /api/v1/jobs/:id.
func (s *Server) cancelJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := s.engine.Cancel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job cancelled", "id": id})
}

// retryJob handles POST /api/v1/jobs/:id/retry.
func (s *Server) retryJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := s.engine.Retry(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}
