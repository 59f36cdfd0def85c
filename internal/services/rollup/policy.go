package rollup

import (
	"time"

	"FxRollup/internal/domain/repository"
)

const day = 24 * time.Hour

// Policy controls when buckets of one resolution are materialised.
// Buckets ending later than now-Lag are left to live queries; buckets
// starting before now-Horizon are treated as static.
type Policy struct {
	Lag     time.Duration
	Every   time.Duration
	Horizon time.Duration
}

// Window returns the bucket-aligned range [from, to) eligible at now.
func (p Policy) Window(res repository.Resolution, now time.Time) (from, to time.Time) {
	to = res.Align(now.Add(-p.Lag))
	from = res.Align(now.Add(-p.Horizon))
	return from, to
}

// Policies holds one Policy per resolution and mode.
type Policies map[repository.Mode]map[repository.Resolution]Policy

// DefaultPolicies returns the stock lag/cadence/horizon table.
func DefaultPolicies() Policies {
	base := map[repository.Resolution]Policy{
		repository.R5m:  {Lag: time.Minute, Every: 5 * time.Minute, Horizon: 30 * day},
		repository.R15m: {Lag: 5 * time.Minute, Every: 15 * time.Minute, Horizon: 60 * day},
		repository.R1h:  {Lag: 15 * time.Minute, Every: time.Hour, Horizon: 90 * day},
		repository.R4h:  {Lag: time.Hour, Every: time.Hour, Horizon: 360 * day},
		repository.R1d:  {Lag: day, Every: day, Horizon: 5 * 365 * day},
	}
	session := make(map[repository.Resolution]Policy, len(base))
	for r, p := range base {
		session[r] = p
	}
	session[repository.R1h] = Policy{Lag: 15 * time.Minute, Every: time.Hour, Horizon: 180 * day}
	return Policies{repository.ModePlain: base, repository.ModeSession: session}
}

// For returns the policy for (res, mode), falling back to the defaults.
func (ps Policies) For(res repository.Resolution, mode repository.Mode) Policy {
	if p, ok := ps[mode][res]; ok {
		return p
	}
	return DefaultPolicies()[mode][res]
}

// Override replaces non-zero fields of the (res, mode) policy.
func (ps Policies) Override(res repository.Resolution, mode repository.Mode, o Policy) {
	p := ps.For(res, mode)
	if o.Lag > 0 {
		p.Lag = o.Lag
	}
	if o.Every > 0 {
		p.Every = o.Every
	}
	if o.Horizon > 0 {
		p.Horizon = o.Horizon
	}
	if ps[mode] == nil {
		ps[mode] = make(map[repository.Resolution]Policy)
	}
	ps[mode][res] = p
}
