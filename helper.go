package lifecycle

// Register is a convenience wrapper that registers component with m and
// returns the component itself, for fluent-style registration (adapted
// from the teacher's generic Register[T] in helper.go; since this spec's
// components are fixed at construction time — dependencies are declared
// names, not discovered parent pointers — there is no implicitDeps
// parameter here, unlike the teacher's version).
//
// Example:
//
//	db := lifecycle.Register(m, NewDatabase(config))
//	cache := lifecycle.Register(m, NewCache())
func Register[T Component](m *Manager, component T) T {
	m.Register(component)
	return component
}
