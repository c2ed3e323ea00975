// Package tasks runs the long-lived matching and provider sync jobs with real-time progress reporting.
//
// # Core Operations
//
// [MatchEngine] implements [Engine]:
//
//  1. [MatchEngine.FindMatches] : taste profile → candidates → ranked queue
//     - Builds the user's profile from every configured source; a failed source only shrinks it
//     - Short-circuits on an empty profile without loading candidates
//     - Ranks the remaining candidates and optionally records the result
//
//  2. [MatchEngine.CompareUsers] : whether two users share enough taste
//
//  3. [MatchEngine.SyncTopArtists] : stores the user's current top artists from the provider
//
//  4. [MatchEngine.SubmitPlaylist] : pages through a provider playlist and stores it as a candidate
//
// # Progress Reporting
//
// Operations take an optional channel of [ProgressUpdate]. Sends use select
// with default so a slow or absent reader never blocks the job.
package tasks
