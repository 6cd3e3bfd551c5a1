// Package submission implements the posting pipeline: the membership gate,
// the per-user draft state machine and the publication service that turns an
// accepted draft into a channel post.
package submission

import (
	"context"
	"strings"
	"sync"

	"vakhtabot/internal/config"
	"vakhtabot/internal/moderation"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/texts"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

type Service struct {
	adapter transport.Adapter
	store   storage.Store
	log     logx.Logger

	gate     *Gate
	sessions *sessionStore

	// mu guards the config-derived fields below; Apply() may swap them
	// while the dispatcher is running.
	mu             sync.Mutex
	classifier     *moderation.Classifier
	filter         *moderation.WordFilter
	channelID      int64
	channelName    string
	discussion     string
	admin          string
	resumeTag      string
	vacancyTag     string
	resumePhrases  []string
	vacancyPhrases []string
	minPhoneDigits int
}

func New(adapter transport.Adapter, store storage.Store, log logx.Logger, cfg *config.Config) *Service {
	s := &Service{
		adapter:  adapter,
		store:    store,
		log:      log,
		sessions: newSessionStore(),
	}
	s.gate = NewGate(adapter, store, log, cfg.Channel.ChatID)
	s.Apply(cfg)
	return s
}

// Apply swaps in reloaded moderation lists and texts. Safe to call while
// the dispatcher is processing updates.
func (s *Service) Apply(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier = moderation.NewClassifier(cfg.Moderation.ResumePhrases, cfg.Moderation.VacancyPhrases)
	s.filter = moderation.NewWordFilter(cfg.Moderation.BannedWords)
	s.channelID = cfg.Channel.ChatID
	s.channelName = cfg.Channel.Name
	s.discussion = cfg.Channel.DiscussionGroup
	s.admin = cfg.Channel.AdminUsername
	s.resumeTag = cfg.ResumeHashtag()
	s.vacancyTag = cfg.VacancyHashtag()
	s.resumePhrases = cfg.Moderation.ResumePhrases
	s.vacancyPhrases = cfg.Moderation.VacancyPhrases
	s.minPhoneDigits = cfg.MinPhoneDigits()
}

// InSession reports whether the user has an active draft. The app router
// uses it to decide whether unknown commands should be swallowed.
func (s *Service) InSession(userID int64) bool {
	_, ok := s.sessions.get(userID)
	return ok
}

// SessionCount is exposed for operational logging.
func (s *Service) SessionCount() int { return s.sessions.count() }

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

// HandleStart registers the user and sends the welcome text.
func (s *Service) HandleStart(ctx context.Context, m *transport.Message) {
	if err := s.store.UpsertUser(ctx, storage.User{
		ID:         m.FromID,
		Username:   m.FromUsername,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Subscribed: true,
	}); err != nil {
		s.log.Error("user upsert failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		s.reply(ctx, m.ChatID, texts.PublishFailed(s.adminName()))
		return
	}
	if err := s.store.AppendLog(ctx, storage.LogEntry{
		Kind:    "start",
		UserID:  m.FromID,
		Message: "Пользователь @" + m.FromUsername + " запустил бота",
	}); err != nil {
		s.log.Warn("log append failed", logx.Err(err))
	}

	s.mu.Lock()
	text := texts.Welcome(s.channelName, s.discussion, s.admin)
	s.mu.Unlock()
	s.reply(ctx, m.ChatID, text)
	s.log.Info("user started bot", logx.Int64("user_id", m.FromID), logx.String("username", m.FromUsername))
}

// HandleRules sends the posting rules, built from the current phrase lists.
func (s *Service) HandleRules(ctx context.Context, m *transport.Message) {
	s.mu.Lock()
	text := texts.Rules(s.channelName, s.admin, s.resumePhrases, s.vacancyPhrases)
	s.mu.Unlock()
	s.reply(ctx, m.ChatID, text)
}

// HandlePost opens a new submission: membership first, then the phone step.
// Not a member: no session is created.
func (s *Service) HandlePost(ctx context.Context, m *transport.Message) {
	if err := s.store.UpsertUser(ctx, storage.User{
		ID:         m.FromID,
		Username:   m.FromUsername,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Subscribed: true,
	}); err != nil {
		s.log.Error("user upsert failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		s.reply(ctx, m.ChatID, texts.PublishFailed(s.adminName()))
		return
	}

	if !s.gate.Check(ctx, m.FromID) {
		s.mu.Lock()
		channel := s.channelName
		s.mu.Unlock()
		s.reply(ctx, m.ChatID, texts.NotSubscribed(channel))
		s.log.Info("submission refused: not subscribed", logx.Int64("user_id", m.FromID))
		return
	}

	s.sessions.begin(m.FromID)
	s.reply(ctx, m.ChatID, texts.AskPhone)
	s.log.Info("submission started", logx.Int64("user_id", m.FromID))
}

// HandleCancel destroys the active session, if any.
func (s *Service) HandleCancel(ctx context.Context, m *transport.Message) {
	if s.sessions.drop(m.FromID) {
		s.reply(ctx, m.ChatID, texts.Cancelled)
		s.log.Info("submission cancelled", logx.Int64("user_id", m.FromID))
		return
	}
	s.reply(ctx, m.ChatID, texts.NothingToCancel)
}

// HandleUnknownCommand lists the commands the bot understands.
func (s *Service) HandleUnknownCommand(ctx context.Context, m *transport.Message) {
	s.reply(ctx, m.ChatID, texts.UnknownCommand)
}

// HandleMedia rejects non-text content. Session state is never touched.
func (s *Service) HandleMedia(ctx context.Context, m *transport.Message) {
	s.reply(ctx, m.ChatID, texts.TextOnly)
}

// HandleContact consumes a structured phone share while the phone step is
// active; outside of it the share is ignored.
func (s *Service) HandleContact(ctx context.Context, c *transport.Contact) {
	sess, ok := s.sessions.get(c.FromID)
	if !ok || sess.state != StateAwaitingPhone {
		return
	}
	phone, ok := moderation.NormalizePhone(c.PhoneNumber)
	if !ok {
		s.reply(ctx, c.ChatID, texts.AskPhoneAgain)
		return
	}
	sess.phone = phone
	sess.state = StateAwaitingText
	s.reply(ctx, c.ChatID, texts.AskText)
}

// HandleText advances the state machine with a free-text message.
func (s *Service) HandleText(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)

	sess, ok := s.sessions.get(m.FromID)
	if !ok {
		if text == "" {
			s.reply(ctx, m.ChatID, texts.EmptyMessage)
			return
		}
		s.reply(ctx, m.ChatID, texts.StartHint)
		return
	}

	switch sess.state {
	case StateAwaitingPhone:
		s.handlePhoneStep(ctx, m, sess, text)
	case StateAwaitingText:
		s.handleTextStep(ctx, m, sess, text)
	}
}

func (s *Service) handlePhoneStep(ctx context.Context, m *transport.Message, sess *session, text string) {
	phone, ok := moderation.NormalizePhone(text)
	if !ok {
		s.mu.Lock()
		minDigits := s.minPhoneDigits
		s.mu.Unlock()
		// Long text without anything phone-like means the user skipped
		// ahead to the ad itself; remind them of the step order.
		if !moderation.HasContact(text, minDigits) {
			s.reply(ctx, m.ChatID, texts.PhoneBeforeText)
			return
		}
		s.reply(ctx, m.ChatID, texts.AskPhoneAgain)
		return
	}
	sess.phone = phone
	sess.state = StateAwaitingText
	s.reply(ctx, m.ChatID, texts.AskText)
}

func (s *Service) handleTextStep(ctx context.Context, m *transport.Message, sess *session, text string) {
	if text == "" {
		s.reply(ctx, m.ChatID, texts.EmptyMessage)
		return
	}

	res, err := s.Publish(ctx, m.FromID, m.FromUsername, text, sess.phone)

	// Both terminal outcomes and the transient-failure path end the
	// session: resubmission starts from scratch.
	s.sessions.drop(m.FromID)

	if err != nil {
		s.log.Error("publication aborted", logx.Int64("user_id", m.FromID), logx.Err(err))
		s.reply(ctx, m.ChatID, texts.PublishFailed(s.adminName()))
		return
	}

	switch res.Outcome {
	case OutcomePublished:
		s.mu.Lock()
		channel := s.channelName
		s.mu.Unlock()
		s.reply(ctx, m.ChatID, texts.Published(channel))
	case OutcomeRejected:
		s.reply(ctx, m.ChatID, res.UserNotice)
	case OutcomeTransient:
		s.reply(ctx, m.ChatID, texts.PublishFailed(s.adminName()))
	}
}

func (s *Service) adminName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}
