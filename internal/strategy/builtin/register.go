package builtin

import "veloz/internal/strategy"

// RegisterAll registers every builtin strategy factory against reg. Called
// once at gateway startup.
func RegisterAll(reg *strategy.Registry) {
	reg.Register(strategy.TrendFollowing, NewTrendFollower)
	reg.Register(strategy.Grid, NewBreakout)
	reg.Register(strategy.Momentum, NewSupertrend)
}
