package submission

import (
	"context"
	"fmt"

	"vakhtabot/internal/moderation"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/texts"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

type Outcome int

const (
	OutcomePublished Outcome = iota
	OutcomeRejected
	OutcomeTransient
)

// Result is the explicit publication outcome. Rejections and transient
// transport failures are values, not errors; a non-nil error from Publish
// means a persistence failure and aborts the operation.
type Result struct {
	Outcome    Outcome
	Category   moderation.Category
	Reason     string
	UserNotice string
	Ref        transport.MessageRef
}

const (
	reasonBanned   = "запрещённые слова в тексте"
	reasonNoPhrase = "текст не начинается с разрешённой фразы"
)

// Publish runs the full pipeline for an accepted draft: banned-word filter,
// opening-phrase classification, channel publication. Side effects are
// ordered persistence -> audit log -> (caller) notification, so the audit
// trail reflects every attempt even if the user notification fails.
//
// A transport failure during the channel send does NOT persist a Posting:
// recording a phantom publication is worse than losing the attempt.
func (s *Service) Publish(ctx context.Context, userID int64, username, draft, phone string) (Result, error) {
	s.mu.Lock()
	filter := s.filter
	classifier := s.classifier
	channelID := s.channelID
	admin := s.admin
	resumeTag := s.resumeTag
	vacancyTag := s.vacancyTag
	s.mu.Unlock()

	if filter.Match(draft) {
		if err := s.persistRejection(ctx, userID, username, draft, reasonBanned); err != nil {
			return Result{}, err
		}
		return Result{
			Outcome:    OutcomeRejected,
			Category:   moderation.CategoryUnknown,
			Reason:     reasonBanned,
			UserNotice: texts.RejectedBanned(admin),
		}, nil
	}

	category := classifier.Classify(draft)
	if category == moderation.CategoryUnknown {
		if err := s.persistRejection(ctx, userID, username, draft, reasonNoPhrase); err != nil {
			return Result{}, err
		}
		return Result{
			Outcome:    OutcomeRejected,
			Category:   moderation.CategoryUnknown,
			Reason:     reasonNoPhrase,
			UserNotice: texts.RejectedNoPhrase(admin),
		}, nil
	}

	tag := resumeTag
	if category == moderation.CategoryVacancy {
		tag = vacancyTag
	}
	post := draft + "\n\n" + texts.ContactLine(phone) + "\n" + tag

	ref, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: channelID}, post, nil)
	if err != nil {
		s.log.Warn("channel publish failed", logx.Int64("user_id", userID), logx.Err(err))
		return Result{Outcome: OutcomeTransient, Category: category}, nil
	}

	p := storage.Posting{
		UserID:           userID,
		Username:         username,
		Text:             draft,
		Category:         string(category),
		Status:           storage.PostingPublished,
		ChannelMessageID: ref.MessageID,
	}
	if _, err := s.store.InsertPosting(ctx, p); err != nil {
		return Result{}, fmt.Errorf("persist posting: %w", err)
	}
	if err := s.store.AppendLog(ctx, storage.LogEntry{
		Kind:    "posting_published",
		UserID:  userID,
		Message: fmt.Sprintf("Объявление от @%s опубликовано (%s)", username, category),
		Details: truncate(draft, 100),
	}); err != nil {
		s.log.Warn("log append failed", logx.Err(err))
	}

	s.log.Info("posting published",
		logx.Int64("user_id", userID),
		logx.String("category", string(category)),
		logx.Int("message_id", ref.MessageID),
	)
	return Result{Outcome: OutcomePublished, Category: category, Ref: ref}, nil
}

func (s *Service) persistRejection(ctx context.Context, userID int64, username, draft, reason string) error {
	p := storage.Posting{
		UserID:       userID,
		Username:     username,
		Text:         draft,
		Category:     string(moderation.CategoryUnknown),
		Status:       storage.PostingRejected,
		RejectReason: reason,
	}
	if _, err := s.store.InsertPosting(ctx, p); err != nil {
		return fmt.Errorf("persist rejection: %w", err)
	}
	if err := s.store.AppendLog(ctx, storage.LogEntry{
		Kind:    "posting_rejected",
		UserID:  userID,
		Message: fmt.Sprintf("Объявление от @%s отклонено: %s", username, reason),
		Details: truncate(draft, 100),
	}); err != nil {
		s.log.Warn("log append failed", logx.Err(err))
	}
	s.log.Info("posting rejected", logx.Int64("user_id", userID), logx.String("reason", reason))
	return nil
}

func truncate(s string, maxN int) string {
	rs := []rune(s)
	if len(rs) <= maxN {
		return s
	}
	return string(rs[:maxN]) + "..."
}
