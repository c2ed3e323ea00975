// Package repositories implements SQLite persistence for harmony.
//
// Key Implementations:
//   - [UserRepository] : chat participants, looked up by id or username
//   - [SubmissionRepository] : submitted playlists and their track/artist membership
//   - [MessageRepository] : room history with author-checked edit and delete
//   - [TasteRepository] : top artists and submission-derived artists per user
//   - [MatchRepository] : saved ranked matches
//   - [SessionRepository] : provider access/refresh tokens
//
// Users and submissions are soft deleted via deleted_at and carry sequence numbers from [NextSequence].
// Messages are hard deleted: removing one removes it from the backing store.
package repositories
