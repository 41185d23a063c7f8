package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CreatedAtLayout is the capture timestamp layout, e.g.
// "Fri Mar 29 11:03:41 +0000 2013". The day may be one or two digits. Go resolves weekday and month names in
// English and takes the zone from the explicit offset, so parsing does not
// depend on the host locale or TZ.
const CreatedAtLayout = "Mon Jan _2 15:04:05 -0700 2006"

// minTSVColumns is id, screen name, created_at and at least one text column.
const minTSVColumns = 4

// object is one level of a parsed JSON document. Keys are matched exactly;
// values stay undecoded until a field is asked for.
type object map[string]json.RawMessage

// DecodeJSON decodes one line of a JSON capture. Unknown fields are ignored.
// The returned error wraps ErrMalformed, ErrControlRecord or ErrBadTimestamp.
func DecodeJSON(line string) (Record, error) {
	var doc object
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return Record{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	if present(doc["delete"]) {
		return Record{}, ErrControlRecord
	}

	idStr, err := requireString(doc, "id_str")
	if err != nil {
		return Record{}, err
	}
	idInt, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: id_str %q is not an integer", ErrMalformed, idStr)
	}
	text, err := requireString(doc, "text")
	if err != nil {
		return Record{}, err
	}
	createdAt, err := requireString(doc, "created_at")
	if err != nil {
		return Record{}, err
	}
	user, err := requireObject(doc, "user")
	if err != nil {
		return Record{}, err
	}
	screenName, err := requireString(user, "screen_name")
	if err != nil {
		return Record{}, err
	}
	followers, err := requireCount(user, "followers_count")
	if err != nil {
		return Record{}, err
	}
	friends, err := requireCount(user, "friends_count")
	if err != nil {
		return Record{}, err
	}
	statuses, err := requireCount(user, "statuses_count")
	if err != nil {
		return Record{}, err
	}

	ts, err := ParseCreatedAt(createdAt)
	if err != nil {
		return Record{}, err
	}
	millis := ts.UnixMilli()

	lat, lon := coordinates(doc)
	rt := retweetOf(doc)

	return Record{
		id:             idStr,
		idInt:          idInt,
		screenName:     screenName,
		followersCount: followers,
		friendsCount:   friends,
		statusesCount:  statuses,
		createdAt:      createdAt,
		text:           text,
		rawJSON:        line,
		retweeted:      rt.present,

		timestampMillis:   Some(millis),
		epochSeconds:      Some(millis / 1000),
		lang:              optString(doc["lang"]),
		inReplyToStatusID: optInt(doc["in_reply_to_status_id"]),
		inReplyToUserID:   optInt(doc["in_reply_to_user_id"]),
		latitude:          lat,
		longitude:         lon,
		retweetOfStatusID: rt.statusID,
		retweetOfUserID:   rt.userID,
		retweetCount:      rt.count,
		displayName:       optString(user["name"]),
		profileImageURL:   optString(user["profile_image_url"]),
	}, nil
}

// DecodeTSV decodes one line of a tab-separated capture:
// id, screen name, created_at, then one or more text columns. Only the
// required fields are populated; created_at is kept verbatim and not parsed.
func DecodeTSV(line string) (Record, error) {
	cols := strings.Split(line, "\t")
	for len(cols) > 0 && cols[len(cols)-1] == "" {
		cols = cols[:len(cols)-1]
	}
	if len(cols) < minTSVColumns {
		return Record{}, fmt.Errorf("%w: %d tab-separated columns, want at least %d", ErrMalformed, len(cols), minTSVColumns)
	}

	idInt, err := strconv.ParseInt(cols[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: id %q is not an integer", ErrMalformed, cols[0])
	}

	return Record{
		id:         cols[0],
		idInt:      idInt,
		screenName: cols[1],
		createdAt:  cols[2],
		text:       strings.TrimSpace(strings.Join(cols[3:], " ")),
	}, nil
}

// ParseCreatedAt parses a created_at value against CreatedAtLayout.
func ParseCreatedAt(s string) (time.Time, error) {
	t, err := time.Parse(CreatedAtLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t, nil
}

type retweet struct {
	present  bool
	statusID Opt[int64]
	userID   Opt[int64]
	count    Opt[int64]
}

// retweetOf reads the retweeted_status container. The count lives on the
// outer document but is only meaningful for retweets.
func retweetOf(doc object) retweet {
	status, ok := optObject(doc["retweeted_status"])
	if !ok {
		return retweet{}
	}
	rt := retweet{
		present:  true,
		statusID: optInt(status["id"]),
		count:    retweetCount(doc["retweet_count"]),
	}
	if !rt.statusID.IsPresent() {
		return rt
	}
	if user, ok := optObject(status["user"]); ok {
		rt.userID = optInt(user["id"])
	}
	return rt
}

// retweetCount accepts a JSON number or a numeric string with an optional
// trailing "+", which the source uses for capped counts ("100+").
func retweetCount(raw json.RawMessage) Opt[int64] {
	if !present(raw) {
		return None[int64]()
	}
	if n := optInt(raw); n.IsPresent() {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return None[int64]()
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "+")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return None[int64]()
	}
	return Some(n)
}

// coordinates reads coordinates.coordinates, a GeoJSON point stored as
// [lon, lat]. Both values come back absent unless the first two elements are
// numbers.
func coordinates(doc object) (lat, lon Opt[float64]) {
	none := None[float64]()
	container, ok := optObject(doc["coordinates"])
	if !ok {
		return none, none
	}
	raw := container["coordinates"]
	if !present(raw) {
		return none, none
	}
	var point []json.RawMessage
	if err := json.Unmarshal(raw, &point); err != nil || len(point) < 2 {
		return none, none
	}
	x, xok := floatValue(point[0])
	y, yok := floatValue(point[1])
	if !xok || !yok {
		return none, none
	}
	return Some(y), Some(x)
}

// present reports whether a member exists and is not JSON null.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func requireString(o object, field string) (string, error) {
	raw := o[field]
	if !present(raw) {
		return "", fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformed, field)
	}
	return s, nil
}

func requireObject(o object, field string) (object, error) {
	if !present(o[field]) {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	nested, ok := optObject(o[field])
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformed, field)
	}
	return nested, nil
}

func requireCount(o object, field string) (int, error) {
	raw := o[field]
	if !present(raw) {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	n, ok := intValue(raw)
	if !ok || n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s is not a non-negative integer", ErrMalformed, field)
	}
	return int(n), nil
}

func optObject(raw json.RawMessage) (object, bool) {
	if !present(raw) || raw[0] != '{' {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false
	}
	return o, true
}

func optString(raw json.RawMessage) Opt[string] {
	if !present(raw) {
		return None[string]()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return None[string]()
	}
	return Some(s)
}

func optInt(raw json.RawMessage) Opt[int64] {
	if n, ok := intValue(raw); ok {
		return Some(n)
	}
	return None[int64]()
}

// intValue parses a JSON number as an integer. Exact integers keep full
// 64-bit precision; fractional values are truncated toward zero.
func intValue(raw json.RawMessage) (int64, bool) {
	if !isNumber(raw) {
		return 0, false
	}
	s := string(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func floatValue(raw json.RawMessage) (float64, bool) {
	if !isNumber(raw) {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isNumber(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}
