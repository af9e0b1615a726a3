package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FeedRequestParams are the validated query parameters of GET /feed.
type FeedRequestParams struct {
	Limit     int    `validate:"gte=0"`
	Cursor    string `validate:"omitempty,uuid"`
	Category  string `validate:"omitempty,max=64"`
	Crop      string `validate:"omitempty,max=64"`
	Profile   string `validate:"omitempty,max=64"`
	Explain   bool
	TrackSeen bool
}

// TrendingRequestParams are the validated query parameters of GET /feed/trending.
type TrendingRequestParams struct {
	Limit       int `validate:"gte=0"`
	WindowHours int `validate:"gte=0"`
}

// queryParser collects parse errors across several parameters.
type queryParser struct {
	values url.Values
	errs   []error
}

func (p *queryParser) intParam(name string) int {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer", name))
	}
	return v
}

func (p *queryParser) boolParam(name string) bool {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean", name))
	}
	return v
}

func (p *queryParser) stringParam(name string) string {
	return strings.TrimSpace(p.values.Get(name))
}

func parseFeedParams(q url.Values) (FeedRequestParams, error) {
	p := &queryParser{values: q}
	params := FeedRequestParams{
		Limit:     p.intParam("limit"),
		Cursor:    p.stringParam("cursor"),
		Category:  p.stringParam("category"),
		Crop:      p.stringParam("crop"),
		Profile:   p.stringParam("profile"),
		Explain:   p.boolParam("explain"),
		TrackSeen: p.boolParam("track_seen"),
	}
	return params, errors.Join(p.errs...)
}

func parseTrendingParams(q url.Values) (TrendingRequestParams, error) {
	p := &queryParser{values: q}
	params := TrendingRequestParams{
		Limit:       p.intParam("limit"),
		WindowHours: p.intParam("window_hours"),
	}
	return params, errors.Join(p.errs...)
}

// validationMessage flattens validator errors into one client-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "uuid":
			parts = append(parts, name+" must be a post id")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
		case "gte":
			parts = append(parts, fmt.Sprintf("%s must be >= %s", name, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", name, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
