// Package models defines the domain types shared across TableVoice components.
package models

import (
	"log/slog"
	"strings"
	"time"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "用户"
	SpeakerAssistant Speaker = "AI"
	SpeakerMerchant  Speaker = "商家"
)

// ConversationTurn is a single utterance in the session transcript.
// Turns are immutable once appended; their order in the transcript is the
// sole source of conversation history fed to prompts.
type ConversationTurn struct {
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ReflectionEntry is one self-critique persisted across sessions.
type ReflectionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	IsRefined bool      `json:"is_refined"`
}

// ReplyClassification is the outcome of classifying one merchant utterance.
type ReplyClassification string

const (
	// ReplyWaiting means the merchant is still processing; keep listening.
	ReplyWaiting ReplyClassification = "waiting"
	// ReplySuccess means the booking is confirmed and the session can close.
	ReplySuccess ReplyClassification = "success"
	// ReplyNeedUser means the merchant asked for a decision, confirmation or
	// supplement that must come from the user.
	ReplyNeedUser ReplyClassification = "need_user"
	// ReplyContinue is the catch-all for any other merchant utterance.
	ReplyContinue ReplyClassification = "continue"
)

// ParseReplyClassification normalizes a model-produced label into one of the
// four permitted classifications. The classifier is a language model, so
// out-of-vocabulary labels do occur; they degrade to ReplyContinue with a
// warning rather than failing the session.
func ParseReplyClassification(raw string) ReplyClassification {
	label := ReplyClassification(strings.ToLower(strings.TrimSpace(raw)))
	switch label {
	case ReplyWaiting, ReplySuccess, ReplyNeedUser, ReplyContinue:
		return label
	}
	slog.Warn("models.ParseReplyClassification: unrecognized label, falling back to continue", "raw", raw)
	return ReplyContinue
}

// InfoPresence reports whether a requested piece of information already
// appears in the transcript.
type InfoPresence string

const (
	InfoProvided    InfoPresence = "已提供"
	InfoNotProvided InfoPresence = "未提供"
)

// ParseInfoPresence normalizes a model-produced presence check. Anything that
// does not clearly state the information was provided counts as not provided,
// which errs toward asking the user once more instead of inventing a value.
func ParseInfoPresence(raw string) InfoPresence {
	if strings.Contains(strings.TrimSpace(raw), string(InfoProvided)) {
		return InfoProvided
	}
	return InfoNotProvided
}

// BookingRecord is the archived outcome of one completed reservation session.
type BookingRecord struct {
	ID        int64     `json:"id,omitempty"`
	Summary   string    `json:"summary"`
	Succeeded bool      `json:"succeeded"`
	CreatedAt time.Time `json:"created_at"`
}
