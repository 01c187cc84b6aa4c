// Package models defines the records stored in the Inkwell tables.
//
// The `json` tag of each field names its CSV column; fields tagged omitempty
// are optional columns.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Post is a user-authored article.
type Post struct {
	ID        string    `json:"post_id" jsonschema:"description=Content derived post identifier (10 hex characters)"`
	Author    string    `json:"author_name" jsonschema:"description=Free form author display name"`
	Title     string    `json:"title" jsonschema:"description=Post title"`
	Content   string    `json:"content" jsonschema:"description=Post body text"`
	ImagePath string    `json:"post_image_path,omitempty" jsonschema:"description=Blob path of the attached image"`
	Created   Timestamp `json:"timestamp" jsonschema:"description=Creation time (local, second precision)"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID      string    `json:"comment_id" jsonschema:"description=Content derived comment identifier"`
	PostID  string    `json:"post_id" jsonschema:"description=Post this comment belongs to"`
	Author  string    `json:"author_name" jsonschema:"description=Free form author display name"`
	Text    string    `json:"comment" jsonschema:"description=Comment text"`
	Created Timestamp `json:"timestamp" jsonschema:"description=Creation time (local, second precision)"`
}

// Reaction is one anonymous emoji vote on a post.
type Reaction struct {
	ID     string       `json:"reaction_id" jsonschema:"description=Content derived reaction identifier"`
	PostID string       `json:"post_id" jsonschema:"description=Post this reaction belongs to"`
	Kind   ReactionKind `json:"reaction_type" jsonschema:"description=One of the supported reaction symbols"`
}

// User holds per-author profile metadata.
type User struct {
	Author         string `json:"author_name" jsonschema:"description=Author display name (unique)"`
	ProfilePicture string `json:"profile_pic_path,omitempty" jsonschema:"description=Blob path of the profile picture"`
}

// ReactionKind is one of a fixed set of emoji.
type ReactionKind string

// Supported reactions, in display order.
const (
	ReactionHeart   ReactionKind = "❤️"
	ReactionThumbs  ReactionKind = "👍"
	ReactionLaugh   ReactionKind = "😂"
	ReactionMind    ReactionKind = "🤯"
	ReactionThinker ReactionKind = "🤔"
)

// ReactionKinds lists every supported reaction in display order.
var ReactionKinds = []ReactionKind{ReactionHeart, ReactionThumbs, ReactionLaugh, ReactionMind, ReactionThinker}

// Valid reports whether k is a supported reaction.
func (k ReactionKind) Valid() bool {
	for _, v := range ReactionKinds {
		if k == v {
			return true
		}
	}
	return false
}

// TimestampFormat is the on-disk timestamp layout.
const TimestampFormat = time.DateTime

// Accepted when parsing. Fractional seconds are dropped.
var timestampLayouts = []string{
	TimestampFormat,
	time.RFC3339Nano,
	time.DateOnly,
}

// Timestamp is a wall-clock time stored as "YYYY-MM-DD HH:MM:SS" in local
// time.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the second and converts it to local time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.Local().Truncate(time.Second)}
}

// ParseTimestamp parses s in the on-disk format, accepting a few older
// layouts. The empty string is the zero Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// String returns the on-disk representation.
func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(TimestampFormat)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = v
	return nil
}

// JSONSchema describes Timestamp as a string column.
func (Timestamp) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}
