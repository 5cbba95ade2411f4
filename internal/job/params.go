package job

import (
	"fmt"
	"math/rand"
	"time"
)

// Ranges are the configured bounds session parameters are drawn from.
type Ranges struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	MinPages    int
	MaxPages    int
	PagePaths   []string
}

// Page is one simulated page visit beyond the landing page.
type Page struct {
	Path       string
	Engagement time.Duration
}

// SessionParams are the randomized, immutable per-job session bounds.
type SessionParams struct {
	Duration time.Duration // total engagement for the session
	Pages    int           // pages visited including the landing page
	Visits   []Page        // the Pages-1 navigations after the landing page
	// Landing is the engagement spent on the landing page when it is
	// reported explicitly (mp mode).
	Landing time.Duration
	// IDSuffix is the random component of a synthesized session identifier.
	IDSuffix int64
}

const (
	idSuffixMin = 1_000_000_000
	idSuffixMax = 9_999_999_999
)

// DrawSessionParams draws one job's parameters from r. It is a pure function of
// its inputs: the same ranges and seed always produce the same parameters.
func DrawSessionParams(rg Ranges, r *rand.Rand) SessionParams {
	p := SessionParams{
		Duration: between(r, rg.MinDuration, rg.MaxDuration),
		Pages:    betweenInt(r, rg.MinPages, rg.MaxPages),
		Landing:  between(r, rg.MinDuration, rg.MaxDuration),
	}
	if p.Pages < 1 {
		p.Pages = 1
	}
	for i := 1; i < p.Pages; i++ {
		visit := Page{Engagement: between(r, rg.MinDuration/2, rg.MaxDuration/2)}
		if len(rg.PagePaths) > 0 {
			visit.Path = rg.PagePaths[r.Intn(len(rg.PagePaths))]
		}
		p.Visits = append(p.Visits, visit)
	}
	p.IDSuffix = idSuffixMin + r.Int63n(idSuffixMax-idSuffixMin+1)
	return p
}

// SynthesizeSessionID builds a local session identifier in the
// "<digits>.<digits>" form from a creation time and a random component.
func SynthesizeSessionID(created time.Time, suffix int64) string {
	if suffix < 0 {
		suffix = -suffix
	}
	return fmt.Sprintf("%d.%d", created.Unix(), suffix)
}

func between(r *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	// Millisecond resolution matches engagement_time_msec.
	loMs, hiMs := lo.Milliseconds(), hi.Milliseconds()
	if hiMs <= loMs {
		return lo
	}
	return time.Duration(loMs+r.Int63n(hiMs-loMs+1)) * time.Millisecond
}

func betweenInt(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
