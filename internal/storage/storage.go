package storage

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/processor"
)

// Article 归档的新闻条目，URL 唯一
type Article struct {
	ID          string     `gorm:"primaryKey;size:40" json:"id"`
	Title       string     `gorm:"size:512" json:"title"`
	URL         string     `gorm:"size:1024;uniqueIndex" json:"url"`
	Source      string     `gorm:"size:128;index" json:"source"`
	Category    string     `gorm:"size:32;index" json:"category"`
	Content     string     `gorm:"type:text" json:"content"`
	ImageURL    string     `gorm:"size:1024" json:"imageUrl"`
	Author      string     `gorm:"size:256" json:"author"`
	PublishedAt *time.Time `gorm:"index" json:"publishedAt"`
	// 首次/最近一次出现在刷新结果中的时间等附加信息
	ExtraData datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
	log   logrus.FieldLogger
}

// NewStore 打开 Postgres 与 Redis；dsn 或 redisAddr 为空时对应部分不启用
func NewStore(dsn, redisAddr string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{log: log}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&Article{}, &Engagement{}); err != nil {
			return nil, err
		}
		s.DB = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis ping failed")
		}
		s.Redis = rdb
	}

	return s, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func articleFromItem(it collector.NewsItem, seenAt time.Time) Article {
	return Article{
		ID:          processor.HashURL(it.URL),
		Title:       truncateRunesDB(toValidUTF8(it.Title), 512),
		URL:         it.URL,
		Source:      truncateRunesDB(toValidUTF8(it.Source), 128),
		Category:    string(it.Category),
		Content:     toValidUTF8(it.Content),
		ImageURL:    truncateRunesDB(it.ImageURL, 1024),
		Author:      truncateRunesDB(toValidUTF8(it.Author), 256),
		PublishedAt: it.PublishedAt,
		ExtraData: datatypes.JSONMap{
			"last_seen_at": seenAt.UTC().Format(time.RFC3339),
		},
	}
}

// SaveBatch 以 URL 为幂等键写入一批条目，已存在时更新内容字段
func (s *Store) SaveBatch(ctx context.Context, items []collector.NewsItem) error {
	if s.DB == nil || len(items) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]Article, 0, len(items))
	for _, it := range items {
		if it.URL == "" || len(it.URL) > 1024 {
			continue
		}
		rows = append(rows, articleFromItem(it, now))
	}
	if len(rows) == 0 {
		return nil
	}

	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "source", "category", "content", "image_url", "author",
				"published_at", "extra_data", "updated_at",
			}),
		}).
		CreateInBatches(rows, 100).Error
}

// ListArticles 按发布时间倒序返回归档条目；category 为空时不过滤
func (s *Store) ListArticles(ctx context.Context, category string, limit int) ([]Article, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	var list []Article
	db := s.DB.WithContext(ctx).Model(&Article{})
	if category != "" {
		db = db.Where("category = ?", category)
	}
	if err := db.Order("published_at DESC NULLS LAST").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
