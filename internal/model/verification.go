package model

// VerificationPolicy holds the thresholds of the verification predicate.
type VerificationPolicy struct {
	MinLevel int
	MinAds   int64
}

// Verified reports whether p satisfies level >= MinLevel and adWatchCount >= MinAds.
func (vp VerificationPolicy) Verified(p Progress) bool {
	return p.Level >= vp.MinLevel && p.AdWatchCount >= vp.MinAds
}

// Transitioned reports whether the predicate went from false to true
// between old and new. Only this edge triggers a sweep.
func (vp VerificationPolicy) Transitioned(old, new Progress) bool {
	return !vp.Verified(old) && vp.Verified(new)
}
