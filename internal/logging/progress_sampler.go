package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the event type or percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastKind   string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the event kind changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate an unknown total.
func (s *ProgressSampler) ShouldLog(percent float64, kind string) bool {
	if s == nil {
		return true
	}
	kind = strings.TrimSpace(kind)
	emit := false
	if kind != "" && kind != s.lastKind {
		s.lastKind = kind
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastKind = ""
	s.lastBucket = -1
}
