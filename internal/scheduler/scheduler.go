package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/aggregator"
)

// Refresher 由 aggregator.Aggregator 实现
type Refresher interface {
	Refresh(ctx context.Context, v aggregator.View) (*aggregator.Entry, error)
}

// Scheduler 定时预热两个视图，让读请求尽量命中新鲜缓存
type Scheduler struct {
	cron     *cron.Cron
	agg      Refresher
	deadline time.Duration
	log      logrus.FieldLogger

	// StartupDelay 首轮预热的延迟
	StartupDelay time.Duration
}

func New(spec string, agg Refresher, deadline time.Duration, log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		agg:          agg,
		deadline:     deadline,
		log:          log,
		StartupDelay: 5 * time.Second,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮预热，避免与服务启动争抢资源
	time.AfterFunc(s.StartupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	s.log.Info("start warm refresh...")

	var wg sync.WaitGroup
	for _, v := range []aggregator.View{aggregator.ViewNews, aggregator.ViewTrending} {
		view := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			if s.deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.deadline)
				defer cancel()
			}

			log := s.log.WithField("view", view)
			e, err := s.agg.Refresh(ctx, view)
			if err != nil {
				log.WithError(err).Warn("warm refresh failed")
				return
			}
			log.WithField("items", len(e.Items)).Info("warm refresh done")
		}()
	}

	wg.Wait()
	s.log.Info("warm refresh done (all views)")
}
