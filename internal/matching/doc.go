// Package matching builds taste profiles and ranks candidate playlists against them.
//
//   - [Builder] unions a user's artist ids from several [Source]s, tolerating partial failure.
//   - [Ranker] scores candidates with [similarity.Jaccard], drops self-submissions and scores below the threshold, and sorts the rest.
package matching
