// Package membership reacts to chat-member transitions on the tracked
// channel: onboarding on join, a churn inquiry on leave.
package membership

import (
	"context"
	"sync"

	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/texts"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

type Tracker struct {
	adapter transport.Adapter
	store   storage.Store
	log     logx.Logger

	mu          sync.Mutex
	channelID   int64
	channelName string
}

func New(adapter transport.Adapter, store storage.Store, log logx.Logger, cfg *config.Config) *Tracker {
	t := &Tracker{adapter: adapter, store: store, log: log}
	t.Apply(cfg)
	return t
}

func (t *Tracker) Apply(cfg *config.Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channelID = cfg.Channel.ChatID
	t.channelName = cfg.Channel.Name
}

// HandleTransition processes one member edge. The platform reports each
// edge exactly once, so every join greets and every leave asks; there is
// no cross-edge dedup. Transitions on unrelated chats are dropped.
func (t *Tracker) HandleTransition(ctx context.Context, ev *transport.Membership) {
	t.mu.Lock()
	channelID := t.channelID
	channelName := t.channelName
	t.mu.Unlock()

	if ev.ChatID != channelID {
		return
	}

	switch {
	case !ev.WasMember && ev.IsMember:
		if err := t.store.SetSubscribed(ctx, ev.UserID, true); err != nil {
			t.log.Warn("subscribed flag update failed", logx.Int64("user_id", ev.UserID), logx.Err(err))
		}
		t.notify(ctx, ev.UserID, texts.Onboarding(channelName))
		t.log.Info("user joined channel", logx.Int64("user_id", ev.UserID), logx.String("username", ev.Username))

	case ev.WasMember && !ev.IsMember:
		if err := t.store.SetSubscribed(ctx, ev.UserID, false); err != nil {
			t.log.Warn("subscribed flag update failed", logx.Int64("user_id", ev.UserID), logx.Err(err))
		}
		if err := t.store.AppendLog(ctx, storage.LogEntry{
			Kind:    "unsubscribe",
			UserID:  ev.UserID,
			Message: "Пользователь @" + ev.Username + " отписался от канала",
		}); err != nil {
			t.log.Warn("log append failed", logx.Err(err))
		}
		t.notify(ctx, ev.UserID, texts.UnsubscribeQuestion(channelName))
		t.log.Info("user left channel", logx.Int64("user_id", ev.UserID), logx.String("username", ev.Username))
	}
}

// notify is best effort: a user who never opened a private chat with the
// bot is unreachable, and that must not fail the transition handling.
func (t *Tracker) notify(ctx context.Context, userID int64, text string) {
	if _, err := t.adapter.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, nil); err != nil {
		if transport.IsRecipientBlocked(err) {
			t.log.Debug("member unreachable", logx.Int64("user_id", userID))
			return
		}
		t.log.Warn("member notification failed", logx.Int64("user_id", userID), logx.Err(err))
	}
}
