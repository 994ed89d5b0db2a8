package restriction

// Opt wraps a configuration value with an explicit presence flag, so an
// absent restriction can be told apart from one configured with a zero
// value. An absent restriction never constrains anything.
type Opt[T any] struct {
	Value T
	Set   bool
}

// NewOpt returns an Opt holding v with the presence flag set.
func NewOpt[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Get returns the wrapped value and whether it was configured.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// Or returns the wrapped value when configured, otherwise def.
func (o Opt[T]) Or(def T) T {
	if o.Set {
		return o.Value
	}
	return def
}
