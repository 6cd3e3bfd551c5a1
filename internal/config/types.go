package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Channel    ChannelConfig    `json:"channel"`
	Moderation ModerationConfig `json:"moderation"`
	Broadcast  BroadcastConfig  `json:"broadcast,omitempty"`
	Digest     DigestConfig     `json:"digest,omitempty"`

	// AdminIDs lists the operator accounts allowed into the admin panel and
	// broadcast flow. Injected from config on purpose: no compiled-in ids.
	AdminIDs []int64 `json:"admin_ids"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s"). Default: "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil means enabled
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type ChannelConfig struct {
	// ChatID is the numeric id of the target channel (-100...).
	ChatID int64 `json:"chat_id"`

	// Name is the public @name used in user-facing texts.
	Name string `json:"name"`

	DiscussionGroup string `json:"discussion_group,omitempty"`

	// AdminUsername is the operator contact shown in rejection/help texts,
	// without the leading @.
	AdminUsername string `json:"admin_username"`
}

type ModerationConfig struct {
	// ResumePhrases and VacancyPhrases are ordered: the first matching
	// prefix wins, and the resume list is checked before the vacancy list.
	ResumePhrases  []string `json:"resume_phrases"`
	VacancyPhrases []string `json:"vacancy_phrases"`

	BannedWords []string `json:"banned_words"`

	ResumeHashtag  string `json:"resume_hashtag,omitempty"`  // default "#резюме"
	VacancyHashtag string `json:"vacancy_hashtag,omitempty"` // default "#вакансия"

	// MinPhoneDigits is the shortest digit run treated as a phone number.
	MinPhoneDigits int `json:"min_phone_digits,omitempty"` // default 10
}

type BroadcastConfig struct {
	// SendDelay is the minimum pause between consecutive sends
	// (Bot API flood control). Go duration string, default "50ms".
	SendDelay string `json:"send_delay,omitempty"`

	// ProgressEvery controls how many processed recipients trigger one
	// progress-report edit. Default 10.
	ProgressEvery int `json:"progress_every,omitempty"`
}

type DigestConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule is a cron expression (robfig/cron, 5 fields). Default "0 9 * * *".
	Schedule string `json:"schedule,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Channel.ChatID == 0 {
		return errors.New("channel.chat_id is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if len(c.Moderation.ResumePhrases) == 0 {
		return errors.New("moderation.resume_phrases must not be empty")
	}
	if len(c.Moderation.VacancyPhrases) == 0 {
		return errors.New("moderation.vacancy_phrases must not be empty")
	}
	if _, err := parseDur(c.Telegram.PollTimeout); err != nil {
		return fmt.Errorf("telegram.poll_timeout: %w", err)
	}
	if _, err := parseDur(c.Broadcast.SendDelay); err != nil {
		return fmt.Errorf("broadcast.send_delay: %w", err)
	}
	if _, err := parseDur(c.Storage.BusyTimeout); err != nil {
		return fmt.Errorf("storage.busy_timeout: %w", err)
	}
	return nil
}

func parseDur(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ---- Derived getters (defaults applied) ----

func (c *Config) PollTimeout() time.Duration {
	if d, err := parseDur(c.Telegram.PollTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

func (c *Config) SendDelay() time.Duration {
	if d, err := parseDur(c.Broadcast.SendDelay); err == nil && d > 0 {
		return d
	}
	return 50 * time.Millisecond
}

func (c *Config) ProgressEvery() int {
	if c.Broadcast.ProgressEvery > 0 {
		return c.Broadcast.ProgressEvery
	}
	return 10
}

func (c *Config) BusyTimeout() time.Duration {
	if d, err := parseDur(c.Storage.BusyTimeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

func (c *Config) ResumeHashtag() string {
	if strings.TrimSpace(c.Moderation.ResumeHashtag) != "" {
		return c.Moderation.ResumeHashtag
	}
	return "#резюме"
}

func (c *Config) VacancyHashtag() string {
	if strings.TrimSpace(c.Moderation.VacancyHashtag) != "" {
		return c.Moderation.VacancyHashtag
	}
	return "#вакансия"
}

func (c *Config) MinPhoneDigits() int {
	if c.Moderation.MinPhoneDigits > 0 {
		return c.Moderation.MinPhoneDigits
	}
	return 10
}

func (c *Config) ConsoleEnabled() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

func (c *Config) DigestSchedule() string {
	if strings.TrimSpace(c.Digest.Schedule) != "" {
		return c.Digest.Schedule
	}
	return "0 9 * * *"
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
