// Package domain lifecycle.go is the single home of the secret lifecycle
// predicates. Request paths and the janitor must use these rather than
// comparing ViewCount and MaxViews inline.
package domain

import "time"

// Action is what follows from a counted view.
type Action int

const (
	// ActionNone leaves the secret active.
	ActionNone Action = iota
	// ActionDeleteNow removes the secret immediately; the response already
	// carries the content.
	ActionDeleteNow
	// ActionDeferDelete opens the grace window so the paired content fetch can
	// still retrieve the bytes.
	ActionDeferDelete
)

func (a Action) String() string {
	switch a {
	case ActionDeleteNow:
		return "delete_now"
	case ActionDeferDelete:
		return "defer_delete"
	}
	return "none"
}

// IsExhausted reports ViewCount >= MaxViews.
func IsExhausted(s Secret) bool {
	return s.ViewCount >= s.MaxViews
}

// IsTimeExpired reports whether the secret's absolute expiry has passed.
func IsTimeExpired(s Secret, now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// IsExpired reports whether a metadata read must refuse the secret: it is
// exhausted or past its expiry.
func IsExpired(s Secret, now time.Time) bool {
	return IsExhausted(s) || IsTimeExpired(s, now)
}

// IsServable reports whether the content path may still deliver bytes. It is
// one view looser than IsExpired because the content fetch completes the view
// already counted by the metadata read. ViewCount > MaxViews is never servable.
func IsServable(s Secret, now time.Time) bool {
	return s.ViewCount <= s.MaxViews && !IsTimeExpired(s, now)
}

// IsReclaimable reports whether the janitor should delete the secret. An
// exhausted binary secret that is still servable is inside its grace window
// and waits for the content fetch (or for the window to lapse).
func IsReclaimable(s Secret, now time.Time) bool {
	if !IsExpired(s, now) {
		return false
	}
	return !(s.Kind.IsBinary() && IsServable(s, now))
}

// AfterView decides what follows once a view has been counted.
func AfterView(s Secret) Action {
	if !IsExhausted(s) {
		return ActionNone
	}
	if s.Kind.IsBinary() {
		return ActionDeferDelete
	}
	return ActionDeleteNow
}

// RemainingViews returns MaxViews - ViewCount, floored at zero.
func RemainingViews(s Secret) int {
	if r := s.MaxViews - s.ViewCount; r > 0 {
		return r
	}
	return 0
}
