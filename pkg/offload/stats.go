package offload

import "time"

// Stats summarizes RunInference calls
type Stats struct {
	Inferences int
	Failures   int
	Total      time.Duration
	Min        time.Duration
	Max        time.Duration
}

// Average returns the mean latency of successful inferences
func (s Stats) Average() time.Duration {
	if s.Inferences == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Inferences)
}

func (s *Stats) record(d time.Duration, err error) {
	if err != nil {
		s.Failures++
		return
	}
	if s.Inferences == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Inferences++
	s.Total += d
}
