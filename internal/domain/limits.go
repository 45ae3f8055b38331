// Package domain limits.go contains functions to resolve creation-time view and
// expiry limits against config values.
package domain

import "time"

// ClampMaxViews returns requested constrained to [1, ceiling]. A nil or
// non-positive request yields 1.
func ClampMaxViews(requested *int, ceiling int) int {
	if ceiling < 1 {
		ceiling = 1
	}
	if requested == nil || *requested < 1 {
		return 1
	}
	if *requested > ceiling {
		return ceiling
	}
	return *requested
}

// ExpiryPolicy carries the config bounds used by ResolveExpiry.
type ExpiryPolicy struct {
	Default time.Duration // applied when no expiry is requested
	Max     time.Duration // upper bound for non-premium secrets, 0 disables
}

// ResolveExpiry turns the requested expiry (in hours) into an absolute
// timestamp. nil selects the default; 0 means "never expires" and requires
// premium. Negative or over-limit values return ErrInvalidRequest.
func ResolveExpiry(hours *int, now time.Time, p ExpiryPolicy, premium bool) (*time.Time, error) {
	if hours == nil {
		at := now.Add(p.Default)
		return &at, nil
	}
	switch {
	case *hours < 0:
		return nil, ErrInvalidRequest
	case *hours == 0:
		if !premium {
			return nil, ErrInvalidRequest
		}
		return nil, nil
	}
	ttl := time.Duration(*hours) * time.Hour
	if !premium && p.Max > 0 && ttl > p.Max {
		return nil, ErrInvalidRequest
	}
	at := now.Add(ttl)
	return &at, nil
}
