package builtins

import "quantlab/internal/strategy"

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, newSMACross)
	r.Register(MeanReversionName, newMeanReversion)
	r.Register(MomentumName, newMomentum)
}

// NewRegistry returns a registry preloaded with the built-ins.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
