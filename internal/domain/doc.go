// Package domain decodes captured social-media posts into normalized Records.
//
// # Data Source
//
// Captures are newline-delimited files produced by streaming collectors over
// several years. Each line is either one JSON status object or, for manually
// curated and legacy corpora, a tab-separated row. Files may be gzip
// compressed; see the segment adapter for how lines are read.
//
// # JSON Conventions
//
// The schema drifted between capture epochs, so only a handful of members are
// required:
//
//	id_str, text, created_at
//	user.screen_name, user.followers_count, user.friends_count, user.statuses_count
//
// Everything else is optional and may be missing, null, or of an unexpected
// type; in all three cases the field decodes as absent ([Opt]). Unknown members
// are ignored.
//
// Control events:
//
//	{"delete":{"status":{...},"timestamp_ms":"..."}}
//	Any line with a non-null "delete" member is a stream-control notice, not a
//	post, and fails with [ErrControlRecord].
//
// Timestamps:
//
//	"Fri Mar 29 11:03:41 +0000 2013" (see [CreatedAtLayout]).
//	A created_at that does not match fails the whole line with
//	[ErrBadTimestamp]; a Record without a usable time is never produced.
//
// Coordinates:
//
//	"coordinates": {"type":"Point","coordinates":[-73.99, 40.73]}
//	GeoJSON order: longitude first, latitude second.
//
// Retweets:
//
//	retweeted_status.id and retweeted_status.user.id identify the original.
//	retweet_count is either a number or a string such as "100+" for capped
//	counts. The count is only kept when retweeted_status is present.
//
// # TSV Conventions
//
//	<id>\t<screen_name>\t<created_at>\t<text>[\t<text>...]
//	Extra columns are treated as text split on tabs and rejoined with spaces.
//	created_at is stored as-is; no optional fields exist in this format.
package domain
