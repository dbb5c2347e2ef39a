package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/Topline/internal/processor"
)

// ErrNoDatabase 未配置 Postgres
var ErrNoDatabase = errors.New("database not configured")

// Engagement 文章的浏览/分享/评论计数
type Engagement struct {
	ID       string `gorm:"primaryKey;size:40" json:"-"`
	URL      string `gorm:"size:1024;uniqueIndex" json:"url"`
	Views    int64  `gorm:"not null;default:0" json:"views"`
	Shares   int64  `gorm:"not null;default:0" json:"shares"`
	Comments int64  `gorm:"not null;default:0" json:"comments"`
	// Score 不落库，读取时计算
	Score int64 `gorm:"-" json:"score"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Action 计数类型
type Action string

const (
	ActionView    Action = "view"
	ActionShare   Action = "share"
	ActionComment Action = "comment"
)

// 互动分权重：浏览 1，分享 2，评论 3
const (
	viewWeight    = 1
	shareWeight   = 2
	commentWeight = 3
)

// EngagementScore 按权重汇总互动分
func EngagementScore(views, shares, comments int64) int64 {
	return views*viewWeight + shares*shareWeight + comments*commentWeight
}

// ParseAction 解析 view / share / comment
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionView, ActionShare, ActionComment:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Increment 对 URL 的计数加一并返回最新值；行不存在时创建
func (s *Store) Increment(ctx context.Context, url string, action Action) (*Engagement, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}

	var views, shares, comments int64
	column := ""
	switch action {
	case ActionView:
		views, column = 1, "views"
	case ActionShare:
		shares, column = 1, "shares"
	case ActionComment:
		comments, column = 1, "comments"
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	row := Engagement{ID: processor.HashURL(url), URL: url, Views: views, Shares: shares, Comments: comments}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				column:       gorm.Expr("engagements."+column+" + ?", 1),
				"updated_at": time.Now(),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return s.GetEngagement(ctx, url)
}

// GetEngagement 返回 URL 的计数；没有记录时返回零值
func (s *Store) GetEngagement(ctx context.Context, url string) (*Engagement, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	e := &Engagement{}
	err := s.DB.WithContext(ctx).Where("id = ?", processor.HashURL(url)).First(e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Engagement{URL: url}, nil
	}
	if err != nil {
		return nil, err
	}
	e.Score = EngagementScore(e.Views, e.Shares, e.Comments)
	return e, nil
}
