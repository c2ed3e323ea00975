package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// MessageID identifies a chat message.
//
// Persisted messages carry the store's numeric id; messages created locally and not yet confirmed carry a string id.
// The zero value is neither.
type MessageID struct {
	num   int64
	local string
}

// PersistedID returns the id of a stored message.
func PersistedID(n int64) MessageID { return MessageID{num: n} }

// LocalID returns the id of an optimistic, unconfirmed message.
func LocalID(s string) MessageID { return MessageID{local: s} }

// IsPersisted reports whether id came from the store.
func (id MessageID) IsPersisted() bool { return id.local == "" && id.num != 0 }

// IsZero reports whether id is unset.
func (id MessageID) IsZero() bool { return id.local == "" && id.num == 0 }

// Int returns the numeric id, or 0 for local ids.
func (id MessageID) Int() int64 { return id.num }

func (id MessageID) String() string {
	if id.local != "" {
		return id.local
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON encodes persisted ids as numbers and local ids as strings.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.local != "" {
		return json.Marshal(id.local)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LocalID(s)
		return nil
	}

	if bytes.Equal(data, []byte("null")) {
		*id = MessageID{}
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s: %w", data, err)
	}
	*id = PersistedID(n)
	return nil
}

// Author is the profile reference attached to a message.
type Author struct {
	ProfileID string `json:"profile_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatMessage is one entry of a room's history.
//
// ClientRef is generated by the sending client and survives persistence,
// so an optimistic copy can be matched with its stored counterpart.
type ChatMessage struct {
	ID          MessageID `json:"id"`
	ClientRef   string    `json:"client_ref,omitempty"`
	Room        string    `json:"room"`
	Content     string    `json:"content"`
	Author      Author    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	PendingEdit bool      `json:"pending_edit,omitempty"`
	Optimistic  bool      `json:"optimistic,omitempty"`
}
