package domain

// Record is one decoded post. It is built in a single step by DecodeJSON or
// DecodeTSV and never mutated afterwards; the zero Record is never returned
// alongside a nil error.
type Record struct {
	id             string
	idInt          int64
	screenName     string
	followersCount int
	friendsCount   int
	statusesCount  int
	createdAt      string
	text           string
	rawJSON        string
	retweeted      bool

	timestampMillis   Opt[int64]
	epochSeconds      Opt[int64]
	lang              Opt[string]
	inReplyToStatusID Opt[int64]
	inReplyToUserID   Opt[int64]
	latitude          Opt[float64]
	longitude         Opt[float64]
	retweetOfStatusID Opt[int64]
	retweetOfUserID   Opt[int64]
	retweetCount      Opt[int64]
	displayName       Opt[string]
	profileImageURL   Opt[string]
}

// ID returns the identifier in its original string form.
func (r Record) ID() string { return r.id }

// IDInt returns the identifier as an integer for ordering and comparison.
func (r Record) IDInt() int64 { return r.idInt }

func (r Record) ScreenName() string  { return r.screenName }
func (r Record) FollowersCount() int { return r.followersCount }
func (r Record) FriendsCount() int   { return r.friendsCount }
func (r Record) StatusesCount() int  { return r.statusesCount }

// CreatedAt returns the capture timestamp exactly as it appeared in the source.
func (r Record) CreatedAt() string { return r.createdAt }

func (r Record) Text() string { return r.text }

// Content returns the text handed to downstream indexing.
func (r Record) Content() string { return r.text }

// Indexable is always true: lines that cannot be indexed never become Records.
func (r Record) Indexable() bool { return true }

// RawJSON returns the undecoded source line. Empty for TSV records.
func (r Record) RawJSON() string { return r.rawJSON }

func (r Record) TimestampMillis() Opt[int64]   { return r.timestampMillis }
func (r Record) EpochSeconds() Opt[int64]      { return r.epochSeconds }
func (r Record) Lang() Opt[string]             { return r.lang }
func (r Record) InReplyToStatusID() Opt[int64] { return r.inReplyToStatusID }
func (r Record) InReplyToUserID() Opt[int64]   { return r.inReplyToUserID }
func (r Record) Latitude() Opt[float64]        { return r.latitude }
func (r Record) Longitude() Opt[float64]       { return r.longitude }
func (r Record) RetweetOfStatusID() Opt[int64] { return r.retweetOfStatusID }

// RetweetOfUserID is only ever present when RetweetOfStatusID is.
func (r Record) RetweetOfUserID() Opt[int64] { return r.retweetOfUserID }

// RetweetCount distinguishes "zero retweets" (Some(0)) from "unknown" (absent).
func (r Record) RetweetCount() Opt[int64]     { return r.retweetCount }
func (r Record) DisplayName() Opt[string]     { return r.displayName }
func (r Record) ProfileImageURL() Opt[string] { return r.profileImageURL }

// Coordinates returns the point as (lat, lon). Source data stores the pair
// lon-first; callers should use this accessor rather than assume an order.
func (r Record) Coordinates() (lat, lon float64, ok bool) {
	lat, latOK := r.latitude.Get()
	lon, lonOK := r.longitude.Get()
	if !latOK || !lonOK {
		return 0, 0, false
	}
	return lat, lon, true
}

// IsRetweet reports whether the record carried a retweeted_status object.
func (r Record) IsRetweet() bool {
	return r.retweeted
}
