package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/aggregator"
	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// NewsReader 由 aggregator.Aggregator 实现
type NewsReader interface {
	GetNews(ctx context.Context, category string) aggregator.Response
	GetTrending(ctx context.Context) aggregator.Response
	Lookup(ctx context.Context, url string) (collector.NewsItem, bool)
}

// EngagementStore 由 storage.Store 实现
type EngagementStore interface {
	Increment(ctx context.Context, url string, action storage.Action) (*storage.Engagement, error)
	GetEngagement(ctx context.Context, url string) (*storage.Engagement, error)
}

// ArchiveReader 由 storage.Store 实现
type ArchiveReader interface {
	ListArticles(ctx context.Context, category string, limit int) ([]storage.Article, error)
}

// StatsProvider 由 metrics.Metrics 实现
type StatsProvider interface {
	GetStats() map[string]interface{}
}

type Options struct {
	// RequestTimeout 包裹每次读操作，与抓取超时相互独立
	RequestTimeout time.Duration
	Engagement     EngagementStore
	Archive        ArchiveReader
	Stats          StatsProvider
	Log            logrus.FieldLogger
}

type Server struct {
	news NewsReader
	opts Options
	log  logrus.FieldLogger
}

func NewServer(news NewsReader, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Server{news: news, opts: opts, log: opts.Log}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
		v1.GET("/news/detail", s.newsDetail)
		v1.POST("/news/engagement", s.engage)
		v1.GET("/trending", s.trending)
		v1.GET("/categories", s.categories)
		v1.GET("/archive", s.archive)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	if s.opts.Stats == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.opts.Stats.GetStats())
}

func (s *Server) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
}

func (s *Server) listNews(c *gin.Context) {
	limit, offset := pagination(c)

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	resp := s.news.GetNews(ctx, c.Query("category"))

	ok(c, gin.H{
		"items":     page(resp.Items, limit, offset),
		"total":     len(resp.Items),
		"limit":     limit,
		"offset":    offset,
		"timestamp": resp.Timestamp,
		"fromCache": resp.FromCache,
	})
}

func (s *Server) trending(c *gin.Context) {
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	resp := s.news.GetTrending(ctx)

	ok(c, gin.H{
		"items":     resp.Items,
		"total":     len(resp.Items),
		"timestamp": resp.Timestamp,
		"fromCache": resp.FromCache,
	})
}

func (s *Server) newsDetail(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		fail(c, http.StatusBadRequest, "bad_request", "url is required")
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	item, found := s.news.Lookup(ctx, url)
	if !found {
		fail(c, http.StatusNotFound, "not_found", "news not found")
		return
	}

	data := gin.H{"item": item}
	if s.opts.Engagement != nil {
		if e, err := s.opts.Engagement.GetEngagement(ctx, url); err == nil {
			data["engagement"] = e
		} else {
			s.log.WithError(err).WithField("url", url).Warn("load engagement failed")
		}
	}
	ok(c, data)
}

type engageRequest struct {
	URL    string `json:"url" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func (s *Server) engage(c *gin.Context) {
	if s.opts.Engagement == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "engagement storage not configured")
		return
	}

	var req engageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	action, err := storage.ParseAction(req.Action)
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	e, err := s.opts.Engagement.Increment(ctx, req.URL, action)
	if errors.Is(err, storage.ErrNoDatabase) {
		fail(c, http.StatusServiceUnavailable, "unavailable", "engagement storage not configured")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("url", req.URL).Error("increment engagement failed")
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, e)
}

func (s *Server) categories(c *gin.Context) {
	ok(c, classify.All())
}

func (s *Server) archive(c *gin.Context) {
	if s.opts.Archive == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "archive storage not configured")
		return
	}

	category := c.Query("category")
	if category != "" && !classify.Valid(category) {
		ok(c, []storage.Article{})
		return
	}
	limit, _ := pagination(c)

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	list, err := s.opts.Archive.ListArticles(ctx, category, limit)
	if errors.Is(err, storage.ErrNoDatabase) {
		fail(c, http.StatusServiceUnavailable, "unavailable", "archive storage not configured")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("list archive failed")
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, list)
}

// pagination 解析 limit/offset，非法值回退为默认
func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func page(items []collector.NewsItem, limit, offset int) []collector.NewsItem {
	if offset >= len(items) {
		return []collector.NewsItem{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
