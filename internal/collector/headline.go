package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/retry"
)

const defaultHeadlineURL = "https://newsapi.org/v2/top-headlines"

// HeadlineConfig NewsAPI 兼容的 top-headlines 接口参数
type HeadlineConfig struct {
	BaseURL  string
	APIKey   string
	Country  string
	PageSize int
	MaxPages int
	// RecencyWindow > 0 时带上 from 参数
	RecencyWindow time.Duration
	HTTP          HTTPOptions
	Log           logrus.FieldLogger
	Now           func() time.Time
}

// HeadlineFetcher 分页拉取头条 API
type HeadlineFetcher struct {
	name string
	cfg  HeadlineConfig
}

func NewHeadlineFetcher(name string, cfg HeadlineConfig) *HeadlineFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHeadlineURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.HTTP.Accept = "application/json"
	return &HeadlineFetcher{name: name, cfg: cfg}
}

func (h *HeadlineFetcher) Name() string {
	return h.name
}

type headlineResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Articles []headlineArticle `json:"articles"`
}

type headlineArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// Fetch 顺序请求各页；任一页失败则整体返回空列表与错误
func (h *HeadlineFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	log := h.cfg.Log.WithField("source", h.name)

	var items []NewsItem
	for page := 1; page <= h.cfg.MaxPages; page++ {
		articles, err := h.fetchPage(ctx, log, page)
		if err != nil {
			return nil, wrapErr(h.name, err)
		}
		for _, a := range articles {
			items = append(items, h.toItem(a))
		}
		if len(articles) < h.cfg.PageSize {
			break
		}
	}

	log.WithField("count", len(items)).Debug("headlines fetched")
	return items, nil
}

func (h *HeadlineFetcher) pageURL(page int) string {
	q := url.Values{}
	q.Set("apiKey", h.cfg.APIKey)
	if h.cfg.Country != "" {
		q.Set("country", h.cfg.Country)
	}
	q.Set("pageSize", strconv.Itoa(h.cfg.PageSize))
	q.Set("page", strconv.Itoa(page))
	if h.cfg.RecencyWindow > 0 {
		q.Set("from", h.cfg.Now().Add(-h.cfg.RecencyWindow).UTC().Format(time.RFC3339))
	}

	sep := "?"
	if strings.Contains(h.cfg.BaseURL, "?") {
		sep = "&"
	}
	return h.cfg.BaseURL + sep + q.Encode()
}

func (h *HeadlineFetcher) fetchPage(ctx context.Context, log logrus.FieldLogger, page int) ([]headlineArticle, error) {
	body, err := getWithRetry(ctx, log.WithField("page", page), h.pageURL(page), h.cfg.HTTP)
	if err != nil {
		return nil, err
	}

	var resp headlineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Kind: KindPermanent, Err: fmt.Errorf("decode page %d: %w", page, err)}
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, &FetchError{Kind: KindPermanent, Err: retry.Permanent(fmt.Errorf("api error %s: %s", resp.Code, resp.Message))}
	}
	return resp.Articles, nil
}

func (h *HeadlineFetcher) toItem(a headlineArticle) NewsItem {
	content := strings.TrimSpace(a.Description)
	if content == "" {
		content = strings.TrimSpace(a.Content)
	}
	source := strings.TrimSpace(a.Source.Name)
	if source == "" {
		source = h.name
	}

	item := NewsItem{
		Title:    strings.TrimSpace(a.Title),
		Content:  content,
		Source:   source,
		URL:      strings.TrimSpace(a.URL),
		ImageURL: strings.TrimSpace(a.URLToImage),
		Author:   strings.TrimSpace(a.Author),
	}
	if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
		item.PublishedAt = ptrTime(t)
	}
	item.Category = classify.Classify(item.Title, item.Content)
	return item
}
