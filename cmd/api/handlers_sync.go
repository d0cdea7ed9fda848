package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/jobs"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// enqueueJob creates a tracked job and publishes the matching message
func (api *API) enqueueJob(c *gin.Context, msg *models.SyncMessage) {
	job, err := api.tracker.Create(c.Request.Context(), msg.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}
	msg.JobID = job.ID

	if err := api.queue.Publish(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"type":   msg.Type,
		"state":  job.State,
	})
}

// triggerJob builds a handler that enqueues a parameterless job type
func (api *API) triggerJob(jobType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		api.enqueueJob(c, &models.SyncMessage{Type: jobType})
	}
}

func (api *API) triggerSeriesSync(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	api.enqueueJob(c, &models.SyncMessage{
		Type:       models.JobSyncSeriesDetailed,
		EntityType: models.EntitySeries,
		EntityID:   id,
	})
}

func (api *API) triggerImageSync(c *gin.Context) {
	entityType := c.Param("type")
	if !models.ValidContentEntity(entityType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	api.enqueueJob(c, &models.SyncMessage{
		Type:       models.JobSyncContentImages,
		EntityType: entityType,
		EntityID:   id,
	})
}

// invalidateSeries drops cached copies of one series by path, the shortcut
// form callers use after editing a series upstream
func (api *API) invalidateSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	removed := api.client.Invalidate(c.Request.Context(), models.EntitySeries, id)

	c.JSON(http.StatusOK, gin.H{
		"entity_type": models.EntitySeries,
		"id":          id,
		"invalidated": removed,
	})
}

func (api *API) triggerMissingImages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	api.enqueueJob(c, &models.SyncMessage{
		Type:  models.JobSyncAllMissingImages,
		Limit: limit,
	})
}

func (api *API) getJob(c *gin.Context) {
	job, err := api.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

type invalidateRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	ID         int64  `json:"id" binding:"required"`
}

// invalidate drops every cached copy of one entity so the next read goes
// back to upstream
func (api *API) invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed := api.client.Invalidate(c.Request.Context(), req.EntityType, req.ID)

	c.JSON(http.StatusOK, gin.H{
		"entity_type": req.EntityType,
		"id":          req.ID,
		"invalidated": removed,
	})
}

func (api *API) getStats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := api.repo.CountEntities(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count entities"})
		return
	}

	stats := gin.H{
		"entities": counts,
		"cache":    api.cache.Stats(ctx),
	}

	if depth, err := api.queue.Depth(); err == nil {
		stats["queue_depth"] = depth
	}

	c.JSON(http.StatusOK, stats)
}
