package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/database"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/images"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/tvdb"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// respondUpstream wraps a passthrough payload in the upstream response
// envelope so existing TVDB clients can point at the proxy unchanged.
func respondUpstream(c *gin.Context, data any, err error) {
	if err != nil {
		if errors.Is(err, tvdb.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "failure",
				"message": "not found",
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "failure",
			"message": "upstream request failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   data,
	})
}

func (api *API) getSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetSeries(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getSeriesExtended(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetSeriesExtended(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getSeriesEpisodes(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))

	episodes, links, err := api.client.GetSeriesEpisodes(c.Request.Context(), id, page)
	if err != nil {
		respondUpstream(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"episodes": episodes},
		"links":  links,
	})
}

func (api *API) getSeasonExtended(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetSeasonExtended(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getEpisode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetEpisode(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getMovie(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetMovie(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getMovieExtended(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetMovieExtended(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) getPersonExtended(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := api.client.GetPersonExtended(c.Request.Context(), id)
	respondUpstream(c, rec, err)
}

func (api *API) search(c *gin.Context) {
	err := api.client.Search(c.Request.Context(), c.Query("query"))
	if errors.Is(err, tvdb.ErrNotImplemented) {
		c.JSON(http.StatusNotImplemented, gin.H{
			"status":  "failure",
			"message": "search is not supported",
		})
		return
	}
	respondUpstream(c, nil, err)
}

func respondMirror(c *gin.Context, data any, err error) {
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not mirrored"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (api *API) getMirroredSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	series, err := api.repo.GetSeriesByTVDBID(c.Request.Context(), id)
	respondMirror(c, series, err)
}

func (api *API) getMirroredSeason(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	season, err := api.repo.GetSeasonByTVDBID(c.Request.Context(), id)
	respondMirror(c, season, err)
}

func (api *API) getMirroredSeriesArtworks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	series, err := api.repo.GetSeriesByTVDBID(c.Request.Context(), id)
	if err != nil {
		respondMirror(c, nil, err)
		return
	}

	artworks, err := api.repo.ArtworkForEntity(c.Request.Context(), models.EntitySeries, series.ID)
	respondMirror(c, gin.H{"artworks": artworks, "count": len(artworks)}, err)
}

func (api *API) getMirroredEpisode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	episode, err := api.repo.GetEpisodeByTVDBID(c.Request.Context(), id)
	respondMirror(c, episode, err)
}

func (api *API) getMirroredMovie(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	movie, err := api.repo.GetMovieByTVDBID(c.Request.Context(), id)
	respondMirror(c, movie, err)
}

func (api *API) getMirroredPerson(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	person, err := api.repo.GetPersonByTVDBID(c.Request.Context(), id)
	respondMirror(c, person, err)
}

// getImage serves a locally mirrored image. Stored images are immutable
// under their key, so clients may cache them for a day.
func (api *API) getImage(c *gin.Context) {
	entityType := c.Param("type")
	slot := c.Param("slot")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if !models.ValidImageSlot(entityType, slot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown image slot"})
		return
	}

	data, contentType, err := api.images.Get(c.Request.Context(), entityType, id, slot)
	if err != nil {
		// Not mirrored yet; send the caller to upstream when we know the URL
		urls, lookupErr := api.repo.ContentImageURLs(c.Request.Context(), entityType, id)
		if lookupErr == nil {
			if remote, ok := urls[slot]; ok {
				c.Redirect(http.StatusFound, images.AbsoluteURL(remote))
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "image not stored"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}
