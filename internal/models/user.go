package models

import (
	"fmt"
	"strings"
	"time"
)

// User is a harmony participant: a chat author and playlist submitter.
type User struct {
	record
	username       string
	avatarURL      string
	providerUserID string
}

// NewUser creates an unsaved user. The repository assigns its id.
func NewUser(sequence int, username, avatarURL string) *User {
	return &User{record: newRecord(sequence), username: username, avatarURL: avatarURL}
}

func (u *User) Username() string       { return u.username }
func (u *User) AvatarURL() string      { return u.avatarURL }
func (u *User) ProviderUserID() string { return u.providerUserID }

func (u *User) SetUsername(name string)     { u.username = name }
func (u *User) SetAvatarURL(url string)     { u.avatarURL = url }
func (u *User) SetProviderUserID(id string) { u.providerUserID = id }

// Author returns the reference attached to messages this user sends.
func (u *User) Author() Author {
	return Author{ProfileID: u.id, Username: u.username, AvatarURL: u.avatarURL}
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.username) == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Submission is a playlist a user submitted for others to match against.
type Submission struct {
	record
	name        string
	imageURL    string
	submittedBy string
	items       []CandidateItem
}

// NewSubmission creates an unsaved submission keyed by the provider's playlist id.
func NewSubmission(playlistID, name, imageURL, submittedBy string, items []CandidateItem) *Submission {
	s := &Submission{record: newRecord(0), name: name, imageURL: imageURL, submittedBy: submittedBy, items: items}
	s.id = playlistID
	return s
}

func (s *Submission) Name() string           { return s.name }
func (s *Submission) ImageURL() string       { return s.imageURL }
func (s *Submission) SubmittedBy() string    { return s.submittedBy }
func (s *Submission) Items() []CandidateItem { return s.items }

func (s *Submission) SetName(name string)            { s.name = name }
func (s *Submission) SetImageURL(url string)         { s.imageURL = url }
func (s *Submission) SetItems(items []CandidateItem) { s.items = items }

// URI is the provider context URI used to start playback.
func (s *Submission) URI() string { return "spotify:playlist:" + s.id }

// Candidate converts the submission for ranking.
func (s *Submission) Candidate() Candidate {
	return Candidate{
		ID:          s.id,
		Name:        s.name,
		ImageURL:    s.imageURL,
		URI:         s.URI(),
		SubmittedBy: s.submittedBy,
		Items:       s.items,
	}
}

func (s *Submission) Validate() error {
	switch {
	case s.id == "":
		return fmt.Errorf("playlist id is required")
	case strings.TrimSpace(s.name) == "":
		return fmt.Errorf("playlist name is required")
	case s.submittedBy == "":
		return fmt.Errorf("submitted_by is required")
	}
	return nil
}

// UserSession is the signed-in user as broadcast to session subscribers.
type UserSession struct {
	UserID         string
	ProviderUserID string
	Loading        bool
	Err            error
}

// SignedIn reports whether the session identifies a user.
func (s UserSession) SignedIn() bool { return s.UserID != "" && s.Err == nil }

// ProviderSession is the stored provider credential for a user.
type ProviderSession struct {
	UserID         string
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	TokenType      string
	ExpiresAt      time.Time
	UpdatedAt      time.Time
}
