package domain

import (
	"encoding/json"
	"time"
)

// Place is the reverse-geocoding enrichment for a geotagged record.
type Place struct {
	FormattedAddress  string       `json:"formatted_address,omitempty"`
	Name              string       `json:"name,omitempty"`
	Confidence        float64      `json:"confidence,omitempty"`
	Source           string  `json:"source,omitempty"` // "reverse", "original", "failed"
}

// Document is a decoded Record plus pipeline metadata, ready to publish.
type Document struct {
	Record      Record
	Place       *Place
	RunID       string
	ProcessedAt time.Time
}

// documentJSON is the wire form. Absent optional fields are omitted rather
// than written as zero values; a present zero is kept.
type documentJSON struct {
	ID                string       `json:"id"`
	ScreenName        string       `json:"screen_name"`
	FollowersCount    int          `json:"followers_count"`
	FriendsCount      int          `json:"friends_count"`
	StatusesCount     int          `json:"statuses_count"`
	CreatedAt         string       `json:"created_at"`
	Text              string       `json:"text"`
	TimestampMillis   Opt[int64]   `json:"timestamp_ms,omitzero"`
	Epoch             Opt[int64]   `json:"epoch,omitzero"`
	Lang              Opt[string]  `json:"lang,omitzero"`
	InReplyToStatusID Opt[int64]   `json:"in_reply_to_status_id,omitzero"`
	InReplyToUserID   Opt[int64]   `json:"in_reply_to_user_id,omitzero"`
	Latitude          Opt[float64] `json:"latitude,omitzero"`
	Longitude         Opt[float64] `json:"longitude,omitzero"`
	RetweetOfStatusID Opt[int64]   `json:"retweeted_status_id,omitzero"`
	RetweetOfUserID   Opt[int64]   `json:"retweeted_user_id,omitzero"`
	RetweetCount      Opt[int64]   `json:"retweet_count,omitzero"`
	DisplayName       Opt[string]  `json:"name,omitzero"`
	ProfileImageURL   Opt[string]  `json:"profile_image_url,omitzero"`
	Place             *Place       `json:"place,omitempty"`
	RunID             string       `json:"run_id,omitempty"`
	ProcessedAt       time.Time    `json:"processed_at"`
}

// MarshalJSON writes the normalized document.
func (d Document) MarshalJSON() ([]byte, error) {
	r := d.Record
	return json.Marshal(documentJSON{
		ID:                r.id,
		ScreenName:        r.screenName,
		FollowersCount:    r.followersCount,
		FriendsCount:      r.friendsCount,
		StatusesCount:     r.statusesCount,
		CreatedAt:         r.createdAt,
		Text:              r.text,
		TimestampMillis:   r.timestampMillis,
		Epoch:             r.epochSeconds,
		Lang:              r.lang,
		InReplyToStatusID: r.inReplyToStatusID,
		InReplyToUserID:   r.inReplyToUserID,
		Latitude:          r.latitude,
		Longitude:         r.longitude,
		RetweetOfStatusID: r.retweetOfStatusID,
		RetweetOfUserID:   r.retweetOfUserID,
		RetweetCount:      r.retweetCount,
		DisplayName:       r.displayName,
		ProfileImageURL:   r.profileImageURL,
		Place:             d.Place,
		RunID:             d.RunID,
		ProcessedAt:       d.ProcessedAt,
	})
}
