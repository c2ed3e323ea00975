package models

import (
	"slices"
	"time"
)

// IDSet is a set of opaque identifiers (artist ids in practice).
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, skipping empty strings.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids; duplicates collapse.
func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

// Union adds every member of other to s.
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// TasteProfile is the aggregated artist set for one user.
type TasteProfile struct {
	UserID  string
	Artists IDSet
}

// Empty reports whether the profile can produce no matches.
func (p TasteProfile) Empty() bool { return len(p.Artists) == 0 }

// CandidateItem is one entry of a candidate collection.
type CandidateItem struct {
	TrackID   string
	ArtistIDs []string
}

// Candidate is a playlist submitted by some user and considered for matching.
type Candidate struct {
	ID          string
	Name        string
	ImageURL    string
	URI         string
	SubmittedBy string
	Items       []CandidateItem
}

// Artists aggregates the distinct artist ids referenced across the candidate's items.
func (c Candidate) Artists() IDSet {
	s := make(IDSet)
	for _, item := range c.Items {
		s.Add(item.ArtistIDs...)
	}
	return s
}

// RankedCandidate is a candidate retained by ranking, with its similarity score in [0,1].
type RankedCandidate struct {
	Candidate
	Score float64
}

// SavedMatch records that a ranked candidate was produced for a user.
type SavedMatch struct {
	UserID     string
	PlaylistID string
	Score      float64
	CreatedAt  time.Time
}
