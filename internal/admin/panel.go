// Package admin is the operator surface: inline-keyboard panel with stats,
// recent activity views and the announcement broadcast flow.
package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vakhtabot/internal/broadcast"
	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

type Panel struct {
	adapter transport.Adapter
	store   storage.Store
	log     logx.Logger
	engine  *broadcast.Engine

	// Sessions reports active submission drafts for the stats view.
	// Optional; nil hides the line.
	Sessions func() int

	// mu guards cfg; Apply swaps in the hot-reloaded snapshot.
	mu  sync.Mutex
	cfg *config.Config

	// pendingMu guards the per-admin broadcast drafts.
	pendingMu sync.Mutex
	pending   map[int64]string // admin id -> draft text, "" while awaiting input

	actions map[string]func(ctx context.Context, cb *transport.Callback, arg string)
}

func New(adapter transport.Adapter, store storage.Store, log logx.Logger, engine *broadcast.Engine, cfg *config.Config) *Panel {
	p := &Panel{
		adapter: adapter,
		store:   store,
		log:     log,
		engine:  engine,
		pending: make(map[int64]string),
	}
	p.actions = map[string]func(ctx context.Context, cb *transport.Callback, arg string){
		"menu":    p.showMenu,
		"stats":   p.showStats,
		"users":   p.showUsers,
		"ads":     p.showPostings,
		"logs":    p.showLogs,
		"history": p.showHistory,
		"bcast":   p.broadcastStep,
	}
	p.Apply(cfg)
	return p
}

func (p *Panel) Apply(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Authorized reports whether the user may use the panel. The app router
// calls it before dispatching /admin and admin callbacks.
func (p *Panel) Authorized(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.IsAdmin(userID)
}

func menuMarkup() *transport.SendOptions {
	return &transport.SendOptions{Buttons: [][]transport.Button{
		{{Text: "📊 Статистика", Data: "a:stats"}, {Text: "👥 Пользователи", Data: "a:users"}},
		{{Text: "📋 Объявления", Data: "a:ads"}, {Text: "🧾 Журнал", Data: "a:logs"}},
		{{Text: "📢 Рассылка", Data: "a:bcast:new"}, {Text: "🗂 История рассылок", Data: "a:history"}},
	}}
}

func backMarkup() *transport.SendOptions {
	return &transport.SendOptions{Buttons: [][]transport.Button{
		{{Text: "← Меню", Data: "a:menu"}},
	}}
}

// HandleAdmin opens the panel. Unauthorized callers get silence, same as
// an unknown command: the panel does not advertise itself.
func (p *Panel) HandleAdmin(ctx context.Context, m *transport.Message) {
	if !p.Authorized(m.FromID) {
		p.log.Warn("admin command from non-admin", logx.Int64("user_id", m.FromID))
		return
	}
	p.send(ctx, m.ChatID, "Панель администратора", menuMarkup())
}

// HandleCallback routes one panel button press. The callback data is
// parsed once here into a verb and argument; handlers never inspect the
// raw string again.
func (p *Panel) HandleCallback(ctx context.Context, cb *transport.Callback) {
	if !p.Authorized(cb.FromID) {
		p.answer(ctx, cb.ID, "Недоступно")
		return
	}
	verb, arg := parseAction(cb.Data)
	h, ok := p.actions[verb]
	if !ok {
		p.answer(ctx, cb.ID, "")
		p.log.Warn("unknown admin action", logx.String("data", cb.Data))
		return
	}
	p.answer(ctx, cb.ID, "")
	h(ctx, cb, arg)
}

// parseAction splits "a:<verb>[:<arg>]" callback data.
func parseAction(data string) (verb, arg string) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] != "a" {
		return "", ""
	}
	verb = parts[1]
	if len(parts) == 3 {
		arg = parts[2]
	}
	return verb, arg
}

// HandleText consumes an admin message when a broadcast draft is being
// collected. Returns false when the message is none of the panel's
// business and normal routing should continue.
func (p *Panel) HandleText(ctx context.Context, m *transport.Message) bool {
	if !p.Authorized(m.FromID) {
		return false
	}
	p.pendingMu.Lock()
	draft, ok := p.pending[m.FromID]
	if !ok || draft != "" {
		p.pendingMu.Unlock()
		return false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		p.pendingMu.Unlock()
		p.send(ctx, m.ChatID, "Текст рассылки пустой, отправьте ещё раз.", nil)
		return true
	}
	p.pending[m.FromID] = text
	p.pendingMu.Unlock()

	preview := "Текст рассылки:\n\n" + text + "\n\nОтправить всем активным пользователям?"
	p.send(ctx, m.ChatID, preview, &transport.SendOptions{Buttons: [][]transport.Button{
		{{Text: "✅ Отправить", Data: "a:bcast:confirm"}, {Text: "❌ Отмена", Data: "a:bcast:cancel"}},
	}})
	return true
}

// InBroadcastFlow reports whether the admin is mid-flow, so the app router
// can keep ordinary submission handling out of the way.
func (p *Panel) InBroadcastFlow(userID int64) bool {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	_, ok := p.pending[userID]
	return ok
}

func (p *Panel) showMenu(ctx context.Context, cb *transport.Callback, _ string) {
	p.edit(ctx, cb, "Панель администратора", menuMarkup())
}

func (p *Panel) showStats(ctx context.Context, cb *transport.Callback, _ string) {
	users, err := p.store.CountUsers(ctx)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить статистику: "+err.Error(), backMarkup())
		return
	}
	ads, err := p.store.GetPostingStats(ctx)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить статистику: "+err.Error(), backMarkup())
		return
	}

	var b strings.Builder
	b.WriteString("📊 Статистика\n\n")
	fmt.Fprintf(&b, "Пользователи: %d (подписаны %d, заблокировали бота %d)\n", users.Total, users.Subscribed, users.Blocked)
	fmt.Fprintf(&b, "Объявления: %d (опубликовано %d, отклонено %d)\n", ads.Total, ads.Published, ads.Rejected)
	fmt.Fprintf(&b, "Резюме: %d, вакансии: %d\n", ads.Resumes, ads.Vacancies)
	if p.Sessions != nil {
		fmt.Fprintf(&b, "Активные подачи: %d\n", p.Sessions())
	}
	p.edit(ctx, cb, b.String(), backMarkup())
}

func (p *Panel) showUsers(ctx context.Context, cb *transport.Callback, _ string) {
	users, err := p.store.ListActiveUsers(ctx)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить пользователей: "+err.Error(), backMarkup())
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Активные пользователи: %d\n\n", len(users))
	for i, u := range users {
		if i == 15 {
			fmt.Fprintf(&b, "... и ещё %d\n", len(users)-15)
			break
		}
		name := u.Username
		if name == "" {
			name = strings.TrimSpace(u.FirstName + " " + u.LastName)
		} else {
			name = "@" + name
		}
		sub := "подписан"
		if !u.Subscribed {
			sub = "не подписан"
		}
		fmt.Fprintf(&b, "%s (id %d, %s)\n", name, u.ID, sub)
	}
	p.edit(ctx, cb, b.String(), backMarkup())
}

func (p *Panel) showPostings(ctx context.Context, cb *transport.Callback, arg string) {
	filter := storage.PostingFilter{Limit: 10}
	title := "📋 Последние объявления"
	switch arg {
	case "published":
		filter.Status = storage.PostingPublished
		title = "📋 Опубликованные"
	case "rejected":
		filter.Status = storage.PostingRejected
		title = "📋 Отклонённые"
	}
	postings, err := p.store.ListPostings(ctx, filter)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить объявления: "+err.Error(), backMarkup())
		return
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	if len(postings) == 0 {
		b.WriteString("Пока пусто.\n")
	}
	for _, ad := range postings {
		status := "✅"
		if ad.Status == storage.PostingRejected {
			status = "❌ " + ad.RejectReason
		}
		fmt.Fprintf(&b, "#%d @%s [%s] %s\n%s\n\n", ad.ID, ad.Username, ad.Category, status, snippet(ad.Text, 80))
	}
	p.edit(ctx, cb, b.String(), &transport.SendOptions{Buttons: [][]transport.Button{
		{{Text: "Опубликованные", Data: "a:ads:published"}, {Text: "Отклонённые", Data: "a:ads:rejected"}},
		{{Text: "← Меню", Data: "a:menu"}},
	}})
}

func (p *Panel) showLogs(ctx context.Context, cb *transport.Callback, arg string) {
	entries, err := p.store.ListLogs(ctx, storage.LogFilter{Kind: arg, Limit: 15})
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить журнал: "+err.Error(), backMarkup())
		return
	}
	var b strings.Builder
	b.WriteString("🧾 Журнал событий\n\n")
	if len(entries) == 0 {
		b.WriteString("Пока пусто.\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%s [%s] %s\n", e.At.Format("02.01 15:04"), e.Kind, e.Message)
	}
	p.edit(ctx, cb, b.String(), backMarkup())
}

func (p *Panel) showHistory(ctx context.Context, cb *transport.Callback, _ string) {
	runs, err := p.store.ListBroadcasts(ctx, 10)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить историю: "+err.Error(), backMarkup())
		return
	}
	var b strings.Builder
	b.WriteString("🗂 История рассылок\n\n")
	if len(runs) == 0 {
		b.WriteString("Рассылок ещё не было.\n")
	}
	for _, r := range runs {
		status := "завершена"
		if r.Status == storage.RunInProgress {
			status = "выполняется"
		}
		fmt.Fprintf(&b, "#%d %s: %d/%d отправлено, %d ошибок (%s)\n%s\n\n",
			r.ID, r.StartedAt.Format("02.01 15:04"), r.Sent, r.Total, r.Failed, status, snippet(r.Text, 60))
	}
	p.edit(ctx, cb, b.String(), backMarkup())
}

func (p *Panel) broadcastStep(ctx context.Context, cb *transport.Callback, arg string) {
	switch arg {
	case "new":
		p.pendingMu.Lock()
		p.pending[cb.FromID] = ""
		p.pendingMu.Unlock()
		p.edit(ctx, cb, "Отправьте текст рассылки одним сообщением. Отменить можно на шаге подтверждения.", nil)

	case "cancel":
		p.pendingMu.Lock()
		delete(p.pending, cb.FromID)
		p.pendingMu.Unlock()
		p.edit(ctx, cb, "Рассылка отменена.", backMarkup())

	case "confirm":
		p.pendingMu.Lock()
		text := p.pending[cb.FromID]
		delete(p.pending, cb.FromID)
		p.pendingMu.Unlock()
		if text == "" {
			p.edit(ctx, cb, "Текст рассылки не найден, начните заново.", backMarkup())
			return
		}
		p.startBroadcast(ctx, cb, text)

	default:
		p.log.Warn("unknown broadcast step", logx.String("arg", arg))
	}
}

func (p *Panel) startBroadcast(ctx context.Context, cb *transport.Callback, text string) {
	users, err := p.store.ListActiveUsers(ctx)
	if err != nil {
		p.edit(ctx, cb, "Не удалось получить получателей: "+err.Error(), backMarkup())
		return
	}
	if len(users) == 0 {
		p.edit(ctx, cb, "Нет активных получателей.", backMarkup())
		return
	}

	statusRef := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	adminID := cb.FromID

	// The run owns its own lifetime: an admin closing the panel must not
	// cancel a broadcast already in flight.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		sum, err := p.engine.Run(runCtx, adminID, text, users, func(sent, failed, processed, total int) {
			msg := fmt.Sprintf("📢 Рассылка: %d из %d, ошибок %d", processed, total, failed)
			if eerr := p.adapter.EditText(runCtx, statusRef, msg, nil); eerr != nil {
				p.log.Debug("progress edit failed", logx.Err(eerr))
			}
		})
		if err != nil {
			p.log.Error("broadcast run failed", logx.Int64("admin_id", adminID), logx.Err(err))
			msg := "Не удалось выполнить рассылку, попробуйте позже."
			if eerr := p.adapter.EditText(runCtx, statusRef, msg, backMarkup()); eerr != nil {
				p.log.Debug("status edit failed", logx.Err(eerr))
			}
			return
		}
		msg := fmt.Sprintf("📢 Рассылка завершена: отправлено %d, не доставлено %d из %d.", sum.Sent, sum.Failed, sum.Total)
		if eerr := p.adapter.EditText(runCtx, statusRef, msg, backMarkup()); eerr != nil {
			p.log.Debug("status edit failed", logx.Err(eerr))
		}
	}()
}

func (p *Panel) send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) {
	if _, err := p.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		p.log.Warn("admin send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (p *Panel) edit(ctx context.Context, cb *transport.Callback, text string, opt *transport.SendOptions) {
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := p.adapter.EditText(ctx, ref, text, opt); err != nil {
		// Fall back to a fresh message: edits fail on old panels.
		p.send(ctx, cb.ChatID, text, opt)
	}
}

func (p *Panel) answer(ctx context.Context, callbackID, text string) {
	if err := p.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		p.log.Debug("callback answer failed", logx.Err(err))
	}
}

func snippet(s string, maxN int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	rs := []rune(s)
	if len(rs) <= maxN {
		return s
	}
	return string(rs[:maxN]) + "..."
}
