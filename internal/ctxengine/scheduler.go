package ctxengine

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"marketcontext/internal/markethours"
)

// startScheduler runs Refresh on RefreshCron (IST, seconds field) on NSE
// trading days. An empty watchlist or cron expression disables it.
func (svc *Service) startScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(markethours.IST),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if svc.cfg.RefreshCron == "" || len(svc.cfg.Watchlist) == 0 {
		log.Println("[ctxengine] scheduled refresh disabled")
		c.Start()
		return c, nil
	}

	if _, err := c.AddFunc(svc.cfg.RefreshCron, func() { svc.scheduledRefresh(ctx) }); err != nil {
		return nil, fmt.Errorf("refresh cron %q: %w", svc.cfg.RefreshCron, err)
	}
	c.Start()
	log.Printf("[ctxengine] refresh scheduled: %s IST", svc.cfg.RefreshCron)
	return c, nil
}

func (svc *Service) scheduledRefresh(ctx context.Context) {
	now := svc.now()
	if !markethours.IsTradingDay(now) {
		log.Printf("[ctxengine] %s is not a trading day, skipping refresh", now.In(markethours.IST).Format("2006-01-02"))
		return
	}
	if _, err := svc.Refresh(ctx); err != nil {
		log.Printf("[ctxengine] scheduled refresh: %v", err)
	}
}
