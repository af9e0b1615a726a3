// Package feed orchestrates candidate selection, scoring, ordering and
// pagination for the personalized feed and the trending view.
package feed

import "errors"

// ErrFetchFailed is returned when candidates or exclusion sets could not be
// loaded. The ranker never retries; callers decide whether to back off.
var ErrFetchFailed = errors.New("feed: candidate fetch failed")
