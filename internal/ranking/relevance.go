package ranking

import (
	"math"
	"strings"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
)

// Roles recognized by the role match.
const (
	RoleFarmer   = "farmer"
	RoleStudent  = "student"
	RoleBusiness = "business"
)

// experienceLevels is the ordered experience scale.
var experienceLevels = map[string]int{
	"beginner":     0,
	"intermediate": 1,
	"experienced":  2,
	"expert":       3,
}

// RelevanceBreakdown holds the four match signals and their blend.
type RelevanceBreakdown struct {
	Crop       float64 `json:"crop"`
	Location   float64 `json:"location"`
	Role       float64 `json:"role"`
	Experience float64 `json:"experience"`
	Total      float64 `json:"total"`
}

// Relevance scores how well the post and its author fit the viewer.
// A nil viewer or post is scored with neutral values.
func Relevance(v *profile.Viewer, p *post.Post, w *Weights) RelevanceBreakdown {
	if w == nil {
		w = DefaultWeights()
	}
	if v == nil {
		v = &profile.Viewer{}
	}
	if p == nil {
		p = &post.Post{}
	}

	var authorRole, authorLevel string
	if p.Author != nil {
		authorRole = p.Author.Role
		authorLevel = p.Author.ExperienceLevel
	}

	b := RelevanceBreakdown{
		Crop:       CropMatch(v.Crops, p.Crops, w.Crop),
		Location:   LocationMatch(&post.Location{State: v.State, District: v.District}, p.EffectiveLocation(), w.Location),
		Role:       RoleMatch(v.Role, authorRole, w.Role),
		Experience: ExperienceMatch(v.ExperienceLevel, authorLevel, w.Experience),
	}
	b.Total = clamp01(b.Crop*w.Relevance.Crop +
		b.Location*w.Relevance.Location +
		b.Role*w.Relevance.Role +
		b.Experience*w.Relevance.Experience)
	return b
}

// CropMatch returns the share of the post's crop tags the viewer grows, plus
// a bonus per match beyond the first. Tags compare case-insensitively.
func CropMatch(viewerCrops, postCrops []string, c CropMatchConfig) float64 {
	postSet := post.NormalizeCrops(postCrops)
	if len(postSet) == 0 {
		return clamp01(c.NoPostCrops)
	}
	viewerSet := post.NormalizeCrops(viewerCrops)
	if len(viewerSet) == 0 {
		return clamp01(c.NoViewerCrops)
	}

	grows := make(map[string]struct{}, len(viewerSet))
	for _, crop := range viewerSet {
		grows[crop] = struct{}{}
	}
	matches := 0
	for _, crop := range postSet {
		if _, ok := grows[crop]; ok {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	ratio := float64(matches) / float64(len(postSet))
	bonus := math.Min(c.MaxBonus, float64(matches-1)*c.BonusPerMatch)
	return clamp01(ratio + bonus)
}

// LocationMatch compares district first, then state. A missing location on
// either side scores Unknown.
func LocationMatch(viewer, postLoc *post.Location, c LocationMatchConfig) float64 {
	if viewer.IsZero() || postLoc.IsZero() {
		return clamp01(c.Unknown)
	}
	if d := normalize(viewer.District); d != "" && d == normalize(postLoc.District) {
		return clamp01(c.District)
	}
	if s := normalize(viewer.State); s != "" && s == normalize(postLoc.State) {
		return clamp01(c.State)
	}
	return clamp01(c.NoMatch)
}

// RoleMatch compares viewer and author roles.
func RoleMatch(viewerRole, authorRole string, c RoleMatchConfig) float64 {
	return clamp01(roleMatch(normalize(viewerRole), normalize(authorRole), c))
}

func roleMatch(viewerRole, authorRole string, c RoleMatchConfig) float64 {
	switch {
	case viewerRole == "" || authorRole == "":
		return c.Unknown
	case viewerRole == authorRole:
		return c.Same
	case isPeerRole(viewerRole) && isPeerRole(authorRole):
		return c.Peer
	case viewerRole == RoleBusiness || authorRole == RoleBusiness:
		return c.Business
	default:
		return c.Other
	}
}

func isPeerRole(role string) bool {
	return role == RoleFarmer || role == RoleStudent
}

// ExperienceMatch favors authors at or above the viewer's level.
func ExperienceMatch(viewerLevel, authorLevel string, c ExperienceMatchConfig) float64 {
	vl, vok := experienceLevels[normalize(viewerLevel)]
	al, aok := experienceLevels[normalize(authorLevel)]
	if !vok || !aok {
		return clamp01(c.UnknownLevel)
	}

	gap := float64(al - vl)
	switch {
	case gap == 0:
		return clamp01(c.Same)
	case gap > 0:
		return clamp01(math.Max(c.MentorFloor, c.MentorBase-c.MentorStep*gap))
	default:
		return clamp01(math.Max(c.JuniorFloor, c.JuniorBase-c.JuniorStep*(-gap)))
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
