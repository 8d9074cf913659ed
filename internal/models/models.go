package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CredentialKey names one of the three secrets held by the secure store.
type CredentialKey string

const (
	KeyAccessToken  CredentialKey = "access_token"
	KeyRefreshToken CredentialKey = "refresh_token"
	KeyExpiresAt    CredentialKey = "expires_at"
)

// CredentialKeys lists every key in the order they are written.
//
// The access token goes last so a reader never sees an access token without its expiry.
var CredentialKeys = []CredentialKey{KeyRefreshToken, KeyExpiresAt, KeyAccessToken}

// Credential is the full token set owned by the token lifecycle manager.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether now is strictly after the stored expiry.
//
// A zero expiry is always expired.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.After(c.ExpiresAt)
}

// FormatExpiry renders t as epoch milliseconds, the stored representation of expires_at.
func FormatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseExpiry parses an epoch-milliseconds expiry.
func ParseExpiry(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}

// UserIdentity is the acting user as reported by the catalog profile endpoint.
type UserIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the id.
func (u UserIdentity) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// Fields is the flat string map stored at a node of the shared tree.
type Fields map[string]string

// NameField is the single field carried by user records, friend edges and requests.
const NameField = "name"

// Name returns the "name" field.
func (f Fields) Name() string {
	return f[NameField]
}

// NameFields builds the {name: n} value written for edges and requests.
func NameFields(n string) Fields {
	return Fields{NameField: n}
}

// UserRecord is the root users/{id} node.
type UserRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Friend is one child of a friends or friendRequests collection: the peer id and the stored display name.
type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MediaType distinguishes track reviews from album reviews.
type MediaType int

const (
	MediaTrack MediaType = iota
	MediaAlbum
)

func (m MediaType) String() string {
	switch m {
	case MediaTrack:
		return "track"
	case MediaAlbum:
		return "album"
	default:
		return fmt.Sprintf("MediaType(%d)", int(m))
	}
}

// ParseMediaType accepts "track", "album" or the stored numeric form.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "track", "0":
		return MediaTrack, nil
	case "album", "1":
		return MediaAlbum, nil
	default:
		return 0, fmt.Errorf("unknown media type %q", s)
	}
}

// Review fields as stored under users/{author}/reviews/{id}.
const (
	ReviewRatingField = "rating"
	ReviewTextField   = "review"
	ReviewItemField   = "spotifySongId"
	ReviewMediaField  = "musicType"
)

// Review is a rating and text for one track or album, keyed under its author.
type Review struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	Rating         int       `json:"rating"`
	Text           string    `json:"text"`
	TrackOrAlbumID string    `json:"item_id"`
	MediaType      MediaType `json:"media_type"`
}

// Validate checks the rating range, the media type and that an item is referenced.
func (r Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", r.Rating)
	}
	if r.MediaType != MediaTrack && r.MediaType != MediaAlbum {
		return fmt.Errorf("unknown media type %d", int(r.MediaType))
	}
	if strings.TrimSpace(r.TrackOrAlbumID) == "" {
		return fmt.Errorf("track or album id is required")
	}
	return nil
}

// Fields returns the stored representation of r.
func (r Review) Fields() Fields {
	return Fields{
		ReviewRatingField: strconv.Itoa(r.Rating),
		ReviewTextField:   r.Text,
		ReviewItemField:   r.TrackOrAlbumID,
		ReviewMediaField:  strconv.Itoa(int(r.MediaType)),
	}
}

// ReviewFromFields rebuilds a review read from the tree.
//
// Records written by older clients may hold a non-numeric rating; those come back as 0.
func ReviewFromFields(authorID, id string, f Fields) Review {
	rating, _ := strconv.Atoi(f[ReviewRatingField])
	media, err := ParseMediaType(f[ReviewMediaField])
	if err != nil {
		media = MediaAlbum
	}
	return Review{
		ID:             id,
		AuthorID:       authorID,
		Rating:         rating,
		Text:           f[ReviewTextField],
		TrackOrAlbumID: f[ReviewItemField],
		MediaType:      media,
	}
}
