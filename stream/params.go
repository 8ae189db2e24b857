package stream

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tweetstream/errs"
)

// Twitter's documented per-connection predicate limits.
const (
	MaxTrackKeywords = 400
	MaxFollowIDs     = 5000
	MaxLocations     = 25
	MaxBackfill      = 150000
)

// Parameters encodes the request parameters for one stream kind.
// Encode validates before producing values, so a bad builder never reaches the network.
type Parameters interface {
	Kind() Kind
	Encode() (url.Values, error)
}

// backfiller is implemented by parameters that carry a backfill count.
type backfiller interface {
	backfill() int
}

// BoundingBox is a lon/lat rectangle, south-west corner first.
type BoundingBox struct {
	SWLon float64
	SWLat float64
	NELon float64
	NELat float64
}

func (b BoundingBox) validate() error {
	for _, v := range []float64{b.SWLon, b.SWLat, b.NELon, b.NELat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounding box %v has a non-finite coordinate", b)
		}
	}
	if b.SWLon < -180 || b.NELon > 180 || b.SWLat < -90 || b.NELat > 90 {
		return fmt.Errorf("bounding box %v is outside lon [-180,180] lat [-90,90]", b)
	}
	if b.SWLon >= b.NELon || b.SWLat >= b.NELat {
		return fmt.Errorf("bounding box %v must have its south-west corner below and left of its north-east corner", b)
	}
	return nil
}

func (b BoundingBox) encode() []string {
	out := make([]string, 0, 4)
	for _, v := range []float64{b.SWLon, b.SWLat, b.NELon, b.NELat} {
		out = append(out, decimal.NewFromFloat(v).String())
	}
	return out
}

func encodeLocations(boxes []BoundingBox) string {
	parts := make([]string, 0, len(boxes)*4)
	for _, b := range boxes {
		parts = append(parts, b.encode()...)
	}
	return strings.Join(parts, ",")
}

func validateLocations(kind Kind, boxes []BoundingBox) error {
	if len(boxes) > MaxLocations {
		return invalid(kind, fmt.Sprintf("%d locations exceeds the limit of %d", len(boxes), MaxLocations))
	}
	for _, b := range boxes {
		if err := b.validate(); err != nil {
			return invalid(kind, err.Error())
		}
	}
	return nil
}

func validateTrack(kind Kind, track []string) error {
	if len(track) > MaxTrackKeywords {
		return invalid(kind, fmt.Sprintf("%d track keywords exceeds the limit of %d", len(track), MaxTrackKeywords))
	}
	for _, kw := range track {
		if strings.Contains(kw, ",") {
			return invalid(kind, fmt.Sprintf("track keyword %q must not contain a comma", kw))
		}
	}
	return nil
}

func invalid(kind Kind, message string) error {
	return errs.New(kind.String(), errs.CodeInvalid, errs.WithMessage(message))
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// FilterParameters builds the predicates of a filter stream.
// At least one of track, follow or locations is required.
type FilterParameters struct {
	track         []string
	follow        []int64
	locations     []BoundingBox
	language      []string
	stallWarnings bool
}

// NewFilterParameters returns an empty builder.
func NewFilterParameters() *FilterParameters {
	return &FilterParameters{
		track:         nil,
		follow:        nil,
		locations:     nil,
		language:      nil,
		stallWarnings: false,
	}
}

// Track adds keywords; blank entries are ignored.
func (p *FilterParameters) Track(keywords ...string) *FilterParameters {
	p.track = appendNonEmpty(p.track, keywords...)
	return p
}

// Follow adds user IDs.
func (p *FilterParameters) Follow(ids ...int64) *FilterParameters {
	p.follow = append(p.follow, ids...)
	return p
}

// AddLocation adds a bounding box.
func (p *FilterParameters) AddLocation(swLon, swLat, neLon, neLat float64) *FilterParameters {
	p.locations = append(p.locations, BoundingBox{SWLon: swLon, SWLat: swLat, NELon: neLon, NELat: neLat})
	return p
}

// Language restricts results to the given BCP 47 codes.
func (p *FilterParameters) Language(codes ...string) *FilterParameters {
	p.language = appendNonEmpty(p.language, codes...)
	return p
}

// StallWarnings asks the server to send warnings when the client falls behind.
func (p *FilterParameters) StallWarnings(enabled bool) *FilterParameters {
	p.stallWarnings = enabled
	return p
}

func (p *FilterParameters) Kind() Kind { return KindFilter }

// Validate checks the predicates against Twitter's limits.
func (p *FilterParameters) Validate() error {
	if p == nil || (len(p.track) == 0 && len(p.follow) == 0 && len(p.locations) == 0) {
		return errs.New(KindFilter.String(), errs.CodeInvalid,
			errs.WithMessage("filter requires at least one of track, follow or locations"),
			errs.WithRemediation("add a track keyword, a follow id or a bounding box"))
	}
	if err := validateTrack(KindFilter, p.track); err != nil {
		return err
	}
	if len(p.follow) > MaxFollowIDs {
		return invalid(KindFilter, fmt.Sprintf("%d follow ids exceeds the limit of %d", len(p.follow), MaxFollowIDs))
	}
	for _, id := range p.follow {
		if id <= 0 {
			return invalid(KindFilter, fmt.Sprintf("follow id %d must be positive", id))
		}
	}
	return validateLocations(KindFilter, p.locations)
}

// Encode validates and renders the form body.
func (p *FilterParameters) Encode() (url.Values, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	values := url.Values{}
	if len(p.track) > 0 {
		values.Set("track", strings.Join(p.track, ","))
	}
	if len(p.follow) > 0 {
		ids := make([]string, len(p.follow))
		for i, id := range p.follow {
			ids[i] = strconv.FormatInt(id, 10)
		}
		values.Set("follow", strings.Join(ids, ","))
	}
	if len(p.locations) > 0 {
		values.Set("locations", encodeLocations(p.locations))
	}
	if len(p.language) > 0 {
		values.Set("language", strings.Join(p.language, ","))
	}
	if p.stallWarnings {
		values.Set("stall_warnings", "true")
	}
	return values, nil
}

// WithScope selects which accounts a user stream covers.
type WithScope string

const (
	// WithUser limits the stream to the authenticated user's own events.
	WithUser WithScope = "user"
	// WithFollowings includes accounts the user follows.
	WithFollowings WithScope = "followings"
)

// UserParameters builds the options of a user stream. Everything is optional.
type UserParameters struct {
	with          WithScope
	allReplies    bool
	track         []string
	locations     []BoundingBox
	stallWarnings bool
}

// NewUserParameters returns an empty builder.
func NewUserParameters() *UserParameters {
	return &UserParameters{
		with:          "",
		allReplies:    false,
		track:         nil,
		locations:     nil,
		stallWarnings: false,
	}
}

func (p *UserParameters) With(scope WithScope) *UserParameters {
	p.with = scope
	return p
}

// AllReplies includes replies between followed accounts and strangers.
func (p *UserParameters) AllReplies(enabled bool) *UserParameters {
	p.allReplies = enabled
	return p
}

func (p *UserParameters) Track(keywords ...string) *UserParameters {
	p.track = appendNonEmpty(p.track, keywords...)
	return p
}

func (p *UserParameters) AddLocation(swLon, swLat, neLon, neLat float64) *UserParameters {
	p.locations = append(p.locations, BoundingBox{SWLon: swLon, SWLat: swLat, NELon: neLon, NELat: neLat})
	return p
}

func (p *UserParameters) StallWarnings(enabled bool) *UserParameters {
	p.stallWarnings = enabled
	return p
}

func (p *UserParameters) Kind() Kind { return KindUser }

func (p *UserParameters) Validate() error {
	if p == nil {
		return nil
	}
	switch p.with {
	case "", WithUser, WithFollowings:
	default:
		return invalid(KindUser, fmt.Sprintf("unknown with scope %q", p.with))
	}
	if err := validateTrack(KindUser, p.track); err != nil {
		return err
	}
	return validateLocations(KindUser, p.locations)
}

func (p *UserParameters) Encode() (url.Values, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	values := url.Values{}
	if p == nil {
		return values, nil
	}
	if p.with != "" {
		values.Set("with", string(p.with))
	}
	if p.allReplies {
		values.Set("replies", "all")
	}
	if len(p.track) > 0 {
		values.Set("track", strings.Join(p.track, ","))
	}
	if len(p.locations) > 0 {
		values.Set("locations", encodeLocations(p.locations))
	}
	if p.stallWarnings {
		values.Set("stall_warnings", "true")
	}
	return values, nil
}

// FirehoseParameters carries the optional backfill count of the firehose.
// A positive count replays up to that many messages missed while disconnected;
// a negative count replays them and then ends the session instead of reconnecting.
type FirehoseParameters struct {
	count         int
	stallWarnings bool
}

func NewFirehoseParameters() *FirehoseParameters {
	return &FirehoseParameters{count: 0, stallWarnings: false}
}

// Count sets the signed backfill count; zero disables backfill.
func (p *FirehoseParameters) Count(n int) *FirehoseParameters {
	p.count = n
	return p
}

func (p *FirehoseParameters) StallWarnings(enabled bool) *FirehoseParameters {
	p.stallWarnings = enabled
	return p
}

func (p *FirehoseParameters) Kind() Kind { return KindFirehose }

func (p *FirehoseParameters) backfill() int {
	if p == nil {
		return 0
	}
	return p.count
}

func (p *FirehoseParameters) Validate() error {
	return ValidateBackfill(KindFirehose, p.backfill())
}

func (p *FirehoseParameters) Encode() (url.Values, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	values := url.Values{}
	if p == nil {
		return values, nil
	}
	if p.count != 0 {
		values.Set("count", strconv.Itoa(p.count))
	}
	if p.stallWarnings {
		values.Set("stall_warnings", "true")
	}
	return values, nil
}

// SampleParameters carries the options of the sample stream.
type SampleParameters struct {
	language      []string
	stallWarnings bool
}

func NewSampleParameters() *SampleParameters {
	return &SampleParameters{language: nil, stallWarnings: false}
}

func (p *SampleParameters) Language(codes ...string) *SampleParameters {
	p.language = appendNonEmpty(p.language, codes...)
	return p
}

func (p *SampleParameters) StallWarnings(enabled bool) *SampleParameters {
	p.stallWarnings = enabled
	return p
}

func (p *SampleParameters) Kind() Kind { return KindSample }

func (p *SampleParameters) Encode() (url.Values, error) {
	values := url.Values{}
	if p == nil {
		return values, nil
	}
	if len(p.language) > 0 {
		values.Set("language", strings.Join(p.language, ","))
	}
	if p.stallWarnings {
		values.Set("stall_warnings", "true")
	}
	return values, nil
}

// ValidateBackfill checks a backfill count for the given kind. Only the
// firehose accepts a non-zero count, and its magnitude is capped at MaxBackfill.
func ValidateBackfill(kind Kind, count int) error {
	if count == 0 {
		return nil
	}
	if kind != KindFirehose {
		return invalid(kind, "backfill count is only supported on the firehose")
	}
	if count < -MaxBackfill || count > MaxBackfill {
		return invalid(kind, fmt.Sprintf("backfill count %d exceeds the limit of %d", count, MaxBackfill))
	}
	return nil
}
