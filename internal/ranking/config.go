package ranking

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// DefaultProfile is the name of the profile used when none is requested.
const DefaultProfile = "default"

// weightSumTolerance absorbs float rounding when checking that weights sum to 1.
const weightSumTolerance = 1e-9

// FeedWeights are the top-level weights of the feed score. They must sum to 1.
type FeedWeights struct {
	Relevance  float64 `json:"relevance"`  // default: 0.4
	Engagement float64 `json:"engagement"` // default: 0.3
	Recency    float64 `json:"recency"`    // default: 0.2
	Trust      float64 `json:"trust"`      // default: 0.1
}

// RelevanceWeights blend the four match signals. They must sum to 1.
type RelevanceWeights struct {
	Crop       float64 `json:"crop"`       // default: 0.4
	Location   float64 `json:"location"`   // default: 0.3
	Role       float64 `json:"role"`       // default: 0.15
	Experience float64 `json:"experience"` // default: 0.15
}

// CropMatchConfig tunes the crop overlap signal.
type CropMatchConfig struct {
	NoPostCrops   float64 `json:"no_post_crops"`   // post has no crop tags
	NoViewerCrops float64 `json:"no_viewer_crops"` // viewer has no crop preferences
	BonusPerMatch float64 `json:"bonus_per_match"` // per match beyond the first
	MaxBonus      float64 `json:"max_bonus"`
}

// LocationMatchConfig tunes the location signal.
type LocationMatchConfig struct {
	District float64 `json:"district"`
	State    float64 `json:"state"`
	NoMatch  float64 `json:"no_match"`
	Unknown  float64 `json:"unknown"`
}

// RoleMatchConfig tunes the role signal.
type RoleMatchConfig struct {
	Same     float64 `json:"same"`
	Peer     float64 `json:"peer"`     // both farmer/student
	Business float64 `json:"business"` // either side is business
	Other    float64 `json:"other"`
	Unknown  float64 `json:"unknown"`
}

// ExperienceMatchConfig tunes the experience signal.
type ExperienceMatchConfig struct {
	Same         float64 `json:"same"`
	MentorBase   float64 `json:"mentor_base"` // author more experienced
	MentorStep   float64 `json:"mentor_step"`
	MentorFloor  float64 `json:"mentor_floor"`
	JuniorBase   float64 `json:"junior_base"` // author less experienced
	JuniorStep   float64 `json:"junior_step"`
	JuniorFloor  float64 `json:"junior_floor"`
	UnknownLevel float64 `json:"unknown"`
}

// RecencyBucket maps ages strictly below MaxAgeHours to Score.
type RecencyBucket struct {
	MaxAgeHours float64 `json:"max_age_hours"`
	Score       float64 `json:"score"`
}

// RecencyConfig holds ascending age buckets and the score past the last one.
type RecencyConfig struct {
	Buckets []RecencyBucket `json:"buckets"`
	Floor   float64         `json:"floor"`
}

// EngagementConfig weights each interaction kind in the raw engagement sum.
type EngagementConfig struct {
	Like        float64 `json:"like"`
	Comment     float64 `json:"comment"`
	Share       float64 `json:"share"`
	HelpfulMark float64 `json:"helpful_mark"`
}

// TrustConfig tunes the trust bonus.
type TrustConfig struct {
	Verified     float64 `json:"verified"`
	PerBadge     float64 `json:"per_badge"`
	MaxBadge     float64 `json:"max_badge"`
	Helpful      float64 `json:"helpful"`
	HelpfulRatio float64 `json:"helpful_ratio"` // helpful/comments threshold
}

// TrendingConfig tunes the velocity-based trending score.
type TrendingConfig struct {
	Like       float64 `json:"like"`
	Comment    float64 `json:"comment"`
	Share      float64 `json:"share"`
	FreshHours float64 `json:"fresh_hours"`
	FreshBoost float64 `json:"fresh_boost"`
	WarmHours  float64 `json:"warm_hours"`
	WarmBoost  float64 `json:"warm_boost"`
}

// Weights holds every weight and threshold used by the scorers. A Weights
// value is treated as immutable once built.
type Weights struct {
	Feed       FeedWeights           `json:"feed"`
	Relevance  RelevanceWeights      `json:"relevance"`
	Crop       CropMatchConfig       `json:"crop"`
	Location   LocationMatchConfig   `json:"location"`
	Role       RoleMatchConfig       `json:"role"`
	Experience ExperienceMatchConfig `json:"experience"`
	Recency    RecencyConfig         `json:"recency"`
	Engagement EngagementConfig      `json:"engagement"`
	Trust      TrustConfig           `json:"trust"`
	Trending   TrendingConfig        `json:"trending"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version  string                     `json:"version"`
	Weights  json.RawMessage            `json:"weights"`  // default profile overrides
	Profiles map[string]json.RawMessage `json:"profiles"` // named A/B profiles
}

// DefaultWeights returns the default ranking weight configuration.
//
// Feed formula: total = relevance*0.4 + engagement*0.3 + recency*0.2 + trust*0.1
// Relevance formula: crop*0.4 + location*0.3 + role*0.15 + experience*0.15
// A state-level location match scores 0.7.
func DefaultWeights() *Weights {
	return &Weights{
		Feed: FeedWeights{
			Relevance:  0.4,
			Engagement: 0.3,
			Recency:    0.2,
			Trust:      0.1,
		},
		Relevance: RelevanceWeights{
			Crop:       0.4,
			Location:   0.3,
			Role:       0.15,
			Experience: 0.15,
		},
		Crop: CropMatchConfig{
			NoPostCrops:   0.3,
			NoViewerCrops: 0.5,
			BonusPerMatch: 0.1,
			MaxBonus:      0.3,
		},
		Location: LocationMatchConfig{
			District: 1.0,
			State:    0.7,
			NoMatch:  0.2,
			Unknown:  0.5,
		},
		Role: RoleMatchConfig{
			Same:     1.0,
			Peer:     0.7,
			Business: 0.5,
			Other:    0.3,
			Unknown:  0.5,
		},
		Experience: ExperienceMatchConfig{
			Same:         1.0,
			MentorBase:   1.0,
			MentorStep:   0.1,
			MentorFloor:  0.6,
			JuniorBase:   0.7,
			JuniorStep:   0.15,
			JuniorFloor:  0.3,
			UnknownLevel: 0.5,
		},
		Recency: RecencyConfig{
			Buckets: []RecencyBucket{
				{MaxAgeHours: 1, Score: 1.0},
				{MaxAgeHours: 6, Score: 0.9},
				{MaxAgeHours: 24, Score: 0.7},
				{MaxAgeHours: 72, Score: 0.5},
				{MaxAgeHours: 168, Score: 0.3},
			},
			Floor: 0.1,
		},
		Engagement: EngagementConfig{
			Like:        1,
			Comment:     3,
			Share:       5,
			HelpfulMark: 10,
		},
		Trust: TrustConfig{
			Verified:     0.3,
			PerBadge:     0.1,
			MaxBadge:     0.5,
			Helpful:      0.2,
			HelpfulRatio: 0.3,
		},
		Trending: TrendingConfig{
			Like:       1,
			Comment:    3,
			Share:      5,
			FreshHours: 6,
			FreshBoost: 1.5,
			WarmHours:  24,
			WarmBoost:  1.2,
		},
	}
}

// Clone returns a deep copy of w.
func (w *Weights) Clone() *Weights {
	c := *w
	c.Recency.Buckets = append([]RecencyBucket(nil), w.Recency.Buckets...)
	return &c
}

// Validate checks the weight invariants: both weight groups sum to 1, every
// weight and match value is in [0, 1], interaction weights and trending
// settings are non-negative, and recency buckets are ascending.
func (w *Weights) Validate() error {
	var errs []error

	feed := []float64{w.Feed.Relevance, w.Feed.Engagement, w.Feed.Recency, w.Feed.Trust}
	if err := checkWeightGroup("feed", feed); err != nil {
		errs = append(errs, err)
	}
	relevance := []float64{w.Relevance.Crop, w.Relevance.Location, w.Relevance.Role, w.Relevance.Experience}
	if err := checkWeightGroup("relevance", relevance); err != nil {
		errs = append(errs, err)
	}

	prev := 0.0
	for i, b := range w.Recency.Buckets {
		if b.MaxAgeHours <= prev {
			errs = append(errs, fmt.Errorf("recency bucket %d: max_age_hours %.2f must be greater than %.2f", i, b.MaxAgeHours, prev))
		}
		if b.Score < 0 || b.Score > 1 {
			errs = append(errs, fmt.Errorf("recency bucket %d: score %.2f outside [0, 1]", i, b.Score))
		}
		prev = b.MaxAgeHours
	}
	if w.Recency.Floor < 0 || w.Recency.Floor > 1 {
		errs = append(errs, fmt.Errorf("recency floor %.2f outside [0, 1]", w.Recency.Floor))
	}

	unit := []namedValue{
		{"crop.no_post_crops", w.Crop.NoPostCrops},
		{"crop.no_viewer_crops", w.Crop.NoViewerCrops},
		{"crop.bonus_per_match", w.Crop.BonusPerMatch},
		{"crop.max_bonus", w.Crop.MaxBonus},
		{"location.district", w.Location.District},
		{"location.state", w.Location.State},
		{"location.no_match", w.Location.NoMatch},
		{"location.unknown", w.Location.Unknown},
		{"role.same", w.Role.Same},
		{"role.peer", w.Role.Peer},
		{"role.business", w.Role.Business},
		{"role.other", w.Role.Other},
		{"role.unknown", w.Role.Unknown},
		{"experience.same", w.Experience.Same},
		{"experience.mentor_base", w.Experience.MentorBase},
		{"experience.mentor_step", w.Experience.MentorStep},
		{"experience.mentor_floor", w.Experience.MentorFloor},
		{"experience.junior_base", w.Experience.JuniorBase},
		{"experience.junior_step", w.Experience.JuniorStep},
		{"experience.junior_floor", w.Experience.JuniorFloor},
		{"experience.unknown", w.Experience.UnknownLevel},
		{"trust.verified", w.Trust.Verified},
		{"trust.per_badge", w.Trust.PerBadge},
		{"trust.max_badge", w.Trust.MaxBadge},
		{"trust.helpful", w.Trust.Helpful},
	}
	for _, v := range unit {
		if v.value < 0 || v.value > 1 || math.IsNaN(v.value) {
			errs = append(errs, fmt.Errorf("%s %.4f outside [0, 1]", v.name, v.value))
		}
	}

	nonNegative := []namedValue{
		{"engagement.like", w.Engagement.Like},
		{"engagement.comment", w.Engagement.Comment},
		{"engagement.share", w.Engagement.Share},
		{"engagement.helpful_mark", w.Engagement.HelpfulMark},
		{"trust.helpful_ratio", w.Trust.HelpfulRatio},
		{"trending.like", w.Trending.Like},
		{"trending.comment", w.Trending.Comment},
		{"trending.share", w.Trending.Share},
		{"trending.fresh_hours", w.Trending.FreshHours},
		{"trending.fresh_boost", w.Trending.FreshBoost},
		{"trending.warm_hours", w.Trending.WarmHours},
		{"trending.warm_boost", w.Trending.WarmBoost},
	}
	for _, v := range nonNegative {
		if v.value < 0 || math.IsNaN(v.value) {
			errs = append(errs, fmt.Errorf("%s %.4f must not be negative", v.name, v.value))
		}
	}

	return errors.Join(errs...)
}

type namedValue struct {
	name  string
	value float64
}

func checkWeightGroup(name string, weights []float64) error {
	sum := 0.0
	for _, v := range weights {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s weights: %.4f outside [0, 1]", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%s weights must sum to 1.0, got %.6f", name, sum)
	}
	return nil
}

// Profiles is the set of calibrated weight profiles loaded at startup.
type Profiles struct {
	byName map[string]*Weights
}

// NewProfiles returns a profile set holding only the given default weights.
func NewProfiles(defaults *Weights) *Profiles {
	if defaults == nil {
		defaults = DefaultWeights()
	}
	return &Profiles{byName: map[string]*Weights{DefaultProfile: defaults}}
}

// Get returns the named profile, falling back to the default profile for an
// empty or unknown name.
func (p *Profiles) Get(name string) *Weights {
	if p == nil {
		return DefaultWeights()
	}
	if w, ok := p.byName[name]; ok {
		return w
	}
	return p.byName[DefaultProfile]
}

// Names returns the loaded profile names, sorted.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadCalibration loads weight profiles from a JSON calibration file.
// If the file doesn't exist or can't be parsed, returns the default profile
// with an error. Each profile is merged over the defaults, so partial
// profiles are fine. A named profile that fails validation is skipped with
// a warning; an invalid default profile falls back to DefaultWeights.
func LoadCalibration(filePath string) (*Profiles, error) {
	if filePath == "" {
		return NewProfiles(nil), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return NewProfiles(nil), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return NewProfiles(nil), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	base, err := MergeCalibration(defaults, config.Weights)
	if err == nil {
		err = base.Validate()
	}
	if err != nil {
		slog.Warn("invalid default calibration profile, using defaults",
			"path", filePath,
			"error", err)
		return NewProfiles(nil), fmt.Errorf("invalid default calibration profile: %w", err)
	}
	logCalibrationOverrides(DefaultProfile, defaults, base)

	profiles := NewProfiles(base)
	for name, raw := range config.Profiles {
		if name == DefaultProfile {
			continue
		}
		w, err := MergeCalibration(base, raw)
		if err == nil {
			err = w.Validate()
		}
		if err != nil {
			slog.Warn("skipping invalid calibration profile",
				"profile", name,
				"error", err)
			continue
		}
		logCalibrationOverrides(name, base, w)
		profiles.byName[name] = w
	}

	return profiles, nil
}

// MergeCalibration decodes override on top of a copy of base. Fields the
// override omits keep the base value; a recency bucket list, when present,
// replaces the base list.
func MergeCalibration(base *Weights, override json.RawMessage) (*Weights, error) {
	if base == nil {
		base = DefaultWeights()
	}
	result := base.Clone()
	if len(override) == 0 || string(override) == "null" {
		return result, nil
	}
	if err := json.Unmarshal(override, result); err != nil {
		return nil, fmt.Errorf("failed to merge calibration: %w", err)
	}
	return result, nil
}

// logCalibrationOverrides logs which weights a profile changed.
func logCalibrationOverrides(profile string, base, loaded *Weights) {
	overrides := diffWeights(base, loaded)
	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"profile", profile,
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)",
			"profile", profile)
	}
}

// diffWeights lists changed leaf values as "path: old -> new".
func diffWeights(a, b *Weights) []string {
	var flatA, flatB map[string]any
	rawA, _ := json.Marshal(a)
	rawB, _ := json.Marshal(b)
	_ = json.Unmarshal(rawA, &flatA)
	_ = json.Unmarshal(rawB, &flatB)

	left := make(map[string]string)
	right := make(map[string]string)
	flatten("", flatA, left)
	flatten("", flatB, right)

	var diffs []string
	for k, v := range right {
		if left[k] != v {
			diffs = append(diffs, fmt.Sprintf("%s: %s -> %s", k, left[k], v))
		}
	}
	sort.Strings(diffs)
	return diffs
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []any:
		for i, child := range t {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	default:
		out[prefix] = fmt.Sprint(t)
	}
}
