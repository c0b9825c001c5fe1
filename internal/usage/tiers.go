package usage

// Limits maps tier name -> action kind -> integer limit per period.
// Unlimited (-1) means the action is never denied for that tier. The table
// is built once at startup and passed into constructors; nothing reads it
// from ambient global state.
type Limits map[string]map[string]int

// DefaultLimits is the shipped tier catalog.
func DefaultLimits() Limits {
	return Limits{
		"free": {
			ActionRegistrations: 10,
			ActionSaves:         50,
			ActionSearches:      20,
		},
		"member": {
			ActionRegistrations: 1000,
			ActionSaves:         10000,
			ActionSearches:      1000,
		},
	}
}

// For returns the limit for (tier, action). Unknown tiers and actions map to
// Unlimited so a misconfigured tier fails open rather than locking users out.
func (l Limits) For(tier, action string) int {
	limit, ok := l.Lookup(tier, action)
	if !ok {
		return Unlimited
	}
	return limit
}

// Lookup returns the configured limit and whether one exists.
func (l Limits) Lookup(tier, action string) (int, bool) {
	actions, ok := l[tier]
	if !ok {
		return 0, false
	}
	limit, ok := actions[action]
	return limit, ok
}

// KnownTier reports whether the tier exists in the table.
func (l Limits) KnownTier(tier string) bool {
	_, ok := l[tier]
	return ok
}
