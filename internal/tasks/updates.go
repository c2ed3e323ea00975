package tasks

import (
	"fmt"

	"github.com/desertthunder/harmony/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	BuildProfile Phase = iota
	FetchCandidates
	ScoreCandidates
	RecordMatches
	FetchTopArtists
	FetchPlaylist
	FetchItems
	SaveSubmission
)

func (p Phase) String() string {
	switch p {
	case BuildProfile:
		return "build_profile"
	case FetchCandidates:
		return "fetch_candidates"
	case ScoreCandidates:
		return "score_candidates"
	case RecordMatches:
		return "record_matches"
	case FetchTopArtists:
		return "fetch_top_artists"
	case FetchPlaylist:
		return "fetch_playlist"
	case FetchItems:
		return "fetch_items"
	case SaveSubmission:
		return "save_submission"
	default:
		return ""
	}
}

func buildProfileUpdate(step, total int, profile *models.TasteProfile) ProgressUpdate {
	if profile == nil {
		return ProgressUpdate{Phase: BuildProfile, Step: step, Total: total, Message: "Building taste profile..."}
	}
	return ProgressUpdate{
		Phase:   BuildProfile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Taste profile has %d artists", profile.Artists.Len()),
		Data:    profile,
	}
}

func fetchCandidatesUpdate(step, total, found int) ProgressUpdate {
	if found < 0 {
		return ProgressUpdate{Phase: FetchCandidates, Step: step, Total: total, Message: "Loading candidate playlists..."}
	}
	return ProgressUpdate{
		Phase:   FetchCandidates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Found %d candidate playlists", found),
	}
}

func scoreUpdate(step, total, scored, retained int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScoreCandidates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%d of %d playlists matched", retained, scored),
	}
}

func recordUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RecordMatches,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Saving %d matches...", count),
	}
}

func topArtistsUpdate(step, total, count int) ProgressUpdate {
	if count < 0 {
		return ProgressUpdate{Phase: FetchTopArtists, Step: step, Total: total, Message: "Fetching top artists from Spotify..."}
	}
	return ProgressUpdate{
		Phase:   FetchTopArtists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Stored %d top artists", count),
	}
}

func fetchPlaylistUpdate(step, total int, name string) ProgressUpdate {
	if name == "" {
		return ProgressUpdate{Phase: FetchPlaylist, Step: step, Total: total, Message: "Fetching playlist from Spotify..."}
	}
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Found playlist: %s", name),
	}
}

func fetchItemsUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Read %d tracks", count),
	}
}

func saveSubmissionUpdate(step, total int, sub *models.Submission) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveSubmission,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Submitted: %s (%d tracks)", sub.Name(), len(sub.Items())),
		Data:    sub,
	}
}
