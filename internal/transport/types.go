package transport

import (
	"context"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateCallback   UpdateKind = "callback"
	UpdateContact    UpdateKind = "contact"
	UpdateMedia      UpdateKind = "media"
	UpdateMembership UpdateKind = "membership"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	Callback   *Callback
	Contact    *Contact
	Membership *Membership
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FirstName    string
	LastName     string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// Contact is a structured phone share (the "share my number" button).
type Contact struct {
	FromID       int64
	ChatID       int64
	PhoneNumber  string
	FromUsername string
}

// Membership describes one chat-member transition edge as reported by the
// platform. The platform delivers each edge once; no extra dedup here.
type Membership struct {
	ChatID    int64
	UserID    int64
	Username  string
	WasMember bool
	IsMember  bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline-keyboard button. Rows of buttons are attached via
// SendOptions; the adapter translates them to the platform markup.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Buttons        [][]Button
}

// MemberStatus is the platform-reported relation between a user and a chat.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// IsMember reports whether the status counts as channel membership for the
// submission gate. Restricted users are still members.
func (s MemberStatus) IsMember() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	}
	return false
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	GetChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error)
}

// blockedMarkers are the Bot API error descriptions that mean the recipient
// can never be reached again from this bot. Everything else is transient.
var blockedMarkers = []string{
	"bot was blocked",
	"user is deactivated",
	"bot can't initiate conversation",
	"user not found",
}

// IsRecipientBlocked classifies a send error as a permanent recipient
// failure. Matching is by description substring: the adapter returns the
// platform error verbatim and callers must not depend on its concrete type.
func IsRecipientBlocked(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range blockedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
