package codec

// SkippedCTA records a CTA entry that could not be hydrated.
type SkippedCTA struct {
	SlideID string
	Index   int
	Reason  string
}

// Report summarizes recoverable problems met while hydrating slides. Nothing listed here
// aborted the load; affected slides were hydrated with defaults.
type Report struct {
	Slides           int
	CTAs             int
	MalformedContent []string
	MalformedStyling []string
	MalformedPolls   []string
	SkippedCTAs      []SkippedCTA
}

// Clean reports whether every slide hydrated without recovery.
func (r Report) Clean() bool {
	return len(r.MalformedContent) == 0 &&
		len(r.MalformedStyling) == 0 &&
		len(r.MalformedPolls) == 0 &&
		len(r.SkippedCTAs) == 0
}

func (r *Report) merge(other Report) {
	r.Slides += other.Slides
	r.CTAs += other.CTAs
	r.MalformedContent = append(r.MalformedContent, other.MalformedContent...)
	r.MalformedStyling = append(r.MalformedStyling, other.MalformedStyling...)
	r.MalformedPolls = append(r.MalformedPolls, other.MalformedPolls...)
	r.SkippedCTAs = append(r.SkippedCTAs, other.SkippedCTAs...)
}
