package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

// Digest pushes a short daily stats summary to the operators.
type Digest struct {
	adapter transport.Adapter
	store   storage.Store
	log     logx.Logger

	cron *cron.Cron

	mu       sync.Mutex
	entry    cron.EntryID
	adminIDs []int64
	channel  string
}

func NewDigest(adapter transport.Adapter, store storage.Store, log logx.Logger, cfg *config.Config) *Digest {
	d := &Digest{
		adapter: adapter,
		store:   store,
		log:     log,
		cron:    cron.New(),
	}
	d.Apply(cfg)
	return d
}

// Apply reschedules the digest to match the current config. A disabled
// digest keeps the cron runner alive but with no entries.
func (d *Digest) Apply(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.adminIDs = append([]int64(nil), cfg.AdminIDs...)
	d.channel = cfg.Channel.Name

	if d.entry != 0 {
		d.cron.Remove(d.entry)
		d.entry = 0
	}
	if !cfg.Digest.Enabled || len(cfg.AdminIDs) == 0 {
		return
	}
	id, err := d.cron.AddFunc(cfg.DigestSchedule(), d.run)
	if err != nil {
		d.log.Error("digest schedule rejected", logx.String("schedule", cfg.DigestSchedule()), logx.Err(err))
		return
	}
	d.entry = id
	d.log.Info("digest scheduled", logx.String("schedule", cfg.DigestSchedule()))
}

func (d *Digest) Start() { d.cron.Start() }

func (d *Digest) Stop() {
	// Stop returns a context that completes when running jobs finish.
	<-d.cron.Stop().Done()
}

func (d *Digest) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := d.store.CountUsers(ctx)
	if err != nil {
		d.log.Warn("digest stats failed", logx.Err(err))
		return
	}
	ads, err := d.store.GetPostingStats(ctx)
	if err != nil {
		d.log.Warn("digest stats failed", logx.Err(err))
		return
	}

	d.mu.Lock()
	admins := append([]int64(nil), d.adminIDs...)
	channel := d.channel
	d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Сводка по %s\n\n", channel)
	fmt.Fprintf(&b, "Пользователи: %d (подписаны %d)\n", users.Total, users.Subscribed)
	fmt.Fprintf(&b, "Объявления: %d (опубликовано %d, отклонено %d)\n", ads.Total, ads.Published, ads.Rejected)
	fmt.Fprintf(&b, "Резюме: %d, вакансии: %d", ads.Resumes, ads.Vacancies)
	text := b.String()

	for _, id := range admins {
		if _, err := d.adapter.SendText(ctx, transport.ChatTarget{ChatID: id}, text, nil); err != nil {
			d.log.Warn("digest delivery failed", logx.Int64("admin_id", id), logx.Err(err))
		}
	}
	d.log.Info("digest sent", logx.Int("admins", len(admins)))
}
