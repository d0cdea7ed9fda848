package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

type loginRequest struct {
	APIKey string `json:"apikey" binding:"required"`
	PIN    string `json:"pin"`
}

// login exchanges an API key (and PIN when the key requires one) for a
// bearer token. Every failure produces the same 401 so callers cannot
// probe which keys exist.
func (api *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "failure",
			"message": "invalid credentials",
		})
		return
	}

	token, err := api.auth.Login(c.Request.Context(), req.APIKey, req.PIN)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "failure",
			"message": "invalid credentials",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"token": token},
	})
}

type credentialRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
	RateLimit   int    `json:"rate_limit"`
	RequiresPIN bool   `json:"requires_pin"`
	PIN         string `json:"pin"`
	ExpiresAt   string `json:"expires_at"`
}

func (api *API) createKey(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.RequiresPIN && req.PIN == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin is required when requires_pin is set"})
		return
	}

	createdBy := ""
	if identity, ok := middleware.GetIdentity(c); ok {
		createdBy = identity.ClientName
	}

	cred := &models.Credential{
		Name:        req.Name,
		Description: req.Description,
		Active:      true,
		RateLimit:   req.RateLimit,
		RequiresPIN: req.RequiresPIN,
		PIN:         req.PIN,
		ExpiresAt:   parseExpiry(req.ExpiresAt),
		CreatedBy:   createdBy,
	}
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if cred.RateLimit <= 0 {
		cred.RateLimit = api.cfg.Auth.DefaultRateLimit
	}

	if err := api.repo.CreateCredential(c.Request.Context(), cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key"})
		return
	}

	// The full secret is only ever returned here and on rotation
	c.JSON(http.StatusCreated, cred)
}

func (api *API) listKeys(c *gin.Context) {
	creds, err := api.repo.ListCredentials(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}

	for _, cred := range creds {
		redactCredential(cred)
	}

	c.JSON(http.StatusOK, gin.H{"keys": creds, "count": len(creds)})
}

func (api *API) getKey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	cred, err := api.repo.GetCredential(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get key"})
		return
	}

	redactCredential(cred)
	c.JSON(http.StatusOK, cred)
}

func (api *API) updateKey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	cred, err := api.repo.GetCredential(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get key"})
		return
	}

	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred.Name = req.Name
	cred.Description = req.Description
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if req.RateLimit > 0 {
		cred.RateLimit = req.RateLimit
	}
	cred.RequiresPIN = req.RequiresPIN
	if req.PIN != "" {
		cred.PIN = req.PIN
	}
	if req.ExpiresAt != "" {
		cred.ExpiresAt = parseExpiry(req.ExpiresAt)
	}

	if err := api.repo.UpdateCredential(c.Request.Context(), cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update key"})
		return
	}

	redactCredential(cred)
	c.JSON(http.StatusOK, cred)
}

func (api *API) deleteKey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := api.repo.DeleteCredential(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete key"})
		return
	}

	c.Status(http.StatusNoContent)
}

// rotateKey replaces the secret in place. Outstanding tokens issued against
// the old secret stay valid until they expire; only raw-key auth cuts over.
func (api *API) rotateKey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	cred, err := api.repo.RotateCredential(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate key"})
		return
	}

	c.JSON(http.StatusOK, cred)
}

func redactCredential(cred *models.Credential) {
	cred.Key = cred.KeyPreview()
	cred.PIN = ""
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// parseExpiry accepts an RFC 3339 timestamp; anything else means no expiry
func parseExpiry(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
