package gh

import "github.com/ldevineau/pullwatch/internal/model"

// normalizeReviewState maps a submitted review state to the verdict we
// track. COMMENTED and DISMISSED reviews still leave the reviewer on the
// hook, so they are downgraded to REQUESTED.
func normalizeReviewState(state string) model.ReviewState {
	switch model.ReviewState(state) {
	case model.ReviewApproved:
		return model.ReviewApproved
	case model.ReviewChangesRequested:
		return model.ReviewChangesRequested
	case model.ReviewPending:
		return model.ReviewPending
	default:
		return model.ReviewRequested
	}
}

// reviewMerger keeps at most one review record per reviewer identity.
// Entries are added in precedence order (on-behalf-of team reviews, then
// pending requests, then submitted reviews); a later entry replaces an
// earlier one for the same identity, except that a REQUESTED or PENDING
// entry never overwrites a recorded APPROVED or CHANGES_REQUESTED verdict
// (stale-request guard).
type reviewMerger struct {
	byID  map[string]model.Review
	order []string
}

func newReviewMerger() *reviewMerger {
	return &reviewMerger{byID: make(map[string]model.Review)}
}

func (m *reviewMerger) add(r model.Review) {
	prev, seen := m.byID[r.ID]
	if seen {
		if staleRequest(r.State, prev.State) {
			return
		}
	} else {
		m.order = append(m.order, r.ID)
	}
	m.byID[r.ID] = r
}

func staleRequest(next, recorded model.ReviewState) bool {
	if next != model.ReviewRequested && next != model.ReviewPending {
		return false
	}
	return recorded == model.ReviewApproved || recorded == model.ReviewChangesRequested
}

func (m *reviewMerger) reviews() []model.Review {
	if len(m.order) == 0 {
		return nil
	}
	out := make([]model.Review, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}
