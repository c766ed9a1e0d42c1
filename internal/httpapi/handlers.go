package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lzajac/airdata/internal/store"
	"github.com/lzajac/airdata/internal/validate"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	database := "ok"
	if err := s.store.Ping(ctx); err != nil {
		status = "degraded"
		database = "unreachable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// parseFilter reads the shared city/station_id/limit query parameters.
func (s *Server) parseFilter(c *gin.Context, withLimit bool) (store.QueryFilter, bool) {
	q := store.QueryFilter{
		City:  c.Query("city"),
		Limit: s.cfg.DefaultLimit,
	}

	if v := c.Query("station_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station_id"})
			return q, false
		}
		q.StationID = &id
	}

	if withLimit {
		if v := c.Query("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return q, false
			}
			if limit > s.cfg.MaxLimit {
				limit = s.cfg.MaxLimit
			}
			q.Limit = limit
		}
		if v := c.Query("offset"); v != "" {
			offset, err := strconv.Atoi(v)
			if err != nil || offset < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
				return q, false
			}
			q.Offset = offset
		}
	}

	return q, true
}

func (s *Server) handleList(c *gin.Context) {
	q, ok := s.parseFilter(c, true)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	measurements, err := s.store.Query(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query measurements"})
		return
	}

	c.JSON(http.StatusOK, measurements)
}

func (s *Server) handleLatest(c *gin.Context) {
	q, ok := s.parseFilter(c, false)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	latest, err := s.store.Latest(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query measurements"})
		return
	}

	if latest == nil {
		c.JSON(http.StatusOK, gin.H{"measurement": nil, "message": "no measurements"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) handleStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCreate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	raw, err := validate.ParsePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	defaults := validate.Defaults{
		City: s.cfg.CityName,
		Lat:  s.cfg.Latitude,
		Lon:  s.cfg.Longitude,
	}
	m, err := validate.Normalize(raw, defaults, time.Now())
	if err != nil {
		var fieldErr *validate.FieldError
		if errors.As(err, &fieldErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	id, _, err := s.store.Insert(ctx, m)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to insert measurement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"id":           id,
		"datetime_utc": m.DatetimeUTC.Format(time.RFC3339),
	})
}

func (s *Server) handleDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete measurement"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "measurement not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted_id": id})
}
