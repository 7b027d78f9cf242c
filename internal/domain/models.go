// Package domain defines the persistence models for chats, messages, and the
// read-only user directory. These types are mapped with GORM and form the
// core data layer of the messaging backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// participantKeySep joins the canonical (sorted) participant sequence into the
// unique key column. The unit separator cannot appear in user identifiers.
const participantKeySep = "\x1f"

// MessageStatus is the delivery state of a message. Only StatusSent is
// produced today; the type exists so delivered/read variants can be added
// without breaking consumers.
type MessageStatus string

const (
	// StatusSent means the message was persisted and handed to the
	// notification sink. It is the only status currently assigned.
	StatusSent MessageStatus = "sent"
)

// Valid reports whether s is a known status value.
func (s MessageStatus) Valid() bool {
	return s == StatusSent
}

// ParticipantList is a sorted sequence of user identifiers stored as a JSON
// text column. Sorting happens in the service layer before persistence; the
// list itself is a dumb value type.
type ParticipantList []string

// Value implements driver.Valuer by encoding the list as JSON.
func (p ParticipantList) Value() (driver.Value, error) {
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, accepting the TEXT or BLOB form SQLite returns.
func (p *ParticipantList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(p))
	case []byte:
		return json.Unmarshal(v, (*[]string)(p))
	default:
		return fmt.Errorf("participants: cannot scan %T", src)
	}
}

// Key returns the canonical participant key for the list. The list must
// already be sorted; Key is what the chats.participant_key unique index
// stores and what set-equality lookups compare against.
func (p ParticipantList) Key() string {
	return strings.Join([]string(p), participantKeySep)
}

// Contains reports whether id is one of the participants.
func (p ParticipantList) Contains(id string) bool {
	for _, v := range p {
		if v == id {
			return true
		}
	}
	return false
}

// Chat represents a conversation between a fixed set of participants.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ParticipantKey: canonical sorted participant sequence; the unique index
//     on this column is what makes chat creation an atomic conditional insert
//     (at most one chat per distinct participant set).
//   - Participants: the same sequence, stored readably as JSON.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM. UpdatedAt is bumped
//     on every message append and feeds ETag generation.
type Chat struct {
	ID             string          `json:"id"           gorm:"type:char(36);primaryKey"`
	ParticipantKey string          `json:"-"            gorm:"type:text;not null;uniqueIndex:ux_chat_participants"`
	Participants   ParticipantList `json:"participants" gorm:"type:text;not null"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message represents a single utterance within a chat. Messages are immutable
// once written and owned exclusively by their chat.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChatID: back-reference to the owning chat (indexed).
//   - Seq: position in the chat's message list, starting at 1. Assigned
//     inside the append transaction; UNIQUE(chat_id, seq) keeps the list an
//     ordered sequence even under concurrent senders.
//   - SenderID: identifier of the authoring participant.
//   - Text: non-empty message body.
//   - Status: delivery state (currently always "sent").
//   - CreatedAt: server-assigned UTC timestamp.
type Message struct {
	ID        string        `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string        `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs;uniqueIndex:ux_chat_seq,priority:1"`
	Seq       int64         `json:"seq"        gorm:"not null;uniqueIndex:ux_chat_seq,priority:2"`
	SenderID  string        `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Text      string        `json:"text"       gorm:"type:text;not null"`
	Status    MessageStatus `json:"status"     gorm:"type:varchar(16);not null;default:'sent';check:status IN ('sent','delivered','read')"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Chat is the owning conversation. Messages are cascade-deleted if their
	// chat is ever removed (not done in this scope, but the constraint keeps
	// the schema honest).
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// User is a read-only reference into the external user directory. The backend
// never creates or mutates these rows; they are seeded by the identity
// service that owns them.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	FirstName string    `json:"first_name" gorm:"type:varchar(128);not null"`
	LastName  string    `json:"last_name"  gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// DisplayName is the user's presentation name: first and last name joined
// with a single space.
func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}
