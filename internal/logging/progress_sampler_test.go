package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "download-progress") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_KindChange(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(0, "download-progress") {
		t.Error("first kind should log")
	}
	if s.ShouldLog(1, "download-progress") {
		t.Error("same kind within bucket should not log")
	}
	if !s.ShouldLog(1, "conversion-progress") {
		t.Error("kind change should log")
	}
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(10)
	var logged []float64
	for _, pct := range []float64{0, 4, 9, 10, 15, 25, 99, 100, 100} {
		if s.ShouldLog(pct, "download-progress") {
			logged = append(logged, pct)
		}
	}
	want := []float64{0, 10, 25, 99, 100}
	if len(logged) != len(want) {
		t.Fatalf("logged = %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Fatalf("logged = %v, want %v", logged, want)
		}
	}
}

func TestProgressSampler_UnknownPercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "download-progress") {
		t.Error("first event should log on kind")
	}
	if s.ShouldLog(-1, "download-progress") {
		t.Error("unknown percent without kind change should not log")
	}
	s.Reset()
	if !s.ShouldLog(-1, "download-progress") {
		t.Error("reset should allow kind to log again")
	}
}
