package transformlang

// Environment is the flat variable binding table an evaluation runs
// against. The language has no child scopes: let bindings mutate the
// environment they run in.
type Environment struct {
	vars map[string]Value
}

// NewEnvironment creates an empty environment
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]Value)}
}

// Bind stores a value under the name, overwriting any previous binding
func (e *Environment) Bind(name string, value Value) {
	e.vars[name] = value
}

// Lookup finds a binding by name
func (e *Environment) Lookup(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Names returns all bound names; order is unspecified
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	return names
}
