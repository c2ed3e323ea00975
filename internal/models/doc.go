// Package models defines domain entities and persistence interfaces for harmony.
//
// The package contains two categories of types:
//
// 1. Value records exchanged between components
//   - [ChatMessage] : one room message, optimistic or persisted, keyed by [MessageID]
//   - [IDSet] : set of artist identifiers; a [TasteProfile] wraps one per user
//   - [Candidate] : a submitted playlist considered for matching
//   - [RankedCandidate] : a candidate with its similarity score
//   - [UserSession] : the signed-in user as seen by session subscribers
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [User] : chat participants and playlist submitters
//   - [Submission] : a playlist submitted by a user, with its items
//
// Persistent entities implement the [Model] interface providing ID generation, timestamps, validation, and soft delete support.
// The [Repository] interface defines standard CRUD operations for database access.
package models
