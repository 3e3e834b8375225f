package transformlang

import (
	"fmt"
	"math"
	"strings"

	pkgerrors "fluxstore/pkg/errors"
)

// Builtin is a registered function callable from transform logic
type Builtin func(args []Value) (Value, error)

// BuiltinRegistry maps function names to implementations
type BuiltinRegistry struct {
	funcs map[string]Builtin
}

// NewBuiltinRegistry creates a registry preloaded with the standard
// function set
func NewBuiltinRegistry() *BuiltinRegistry {
	r := &BuiltinRegistry{funcs: make(map[string]Builtin)}
	r.registerStandard()
	return r
}

// Register adds or replaces a function
func (r *BuiltinRegistry) Register(name string, fn Builtin) {
	r.funcs[name] = fn
}

// Lookup finds a function by name
func (r *BuiltinRegistry) Lookup(name string) (Builtin, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

func wantArgs(name string, args []Value, n int) error {
	if len(args) != n {
		return pkgerrors.NewInvalidField(fmt.Sprintf("%s expects %d arguments, got %d", name, n, len(args)))
	}
	return nil
}

func wantNumber(name string, v Value) (float64, error) {
	if v.Kind() != KindNumber {
		return 0, pkgerrors.NewTypeMismatch(fmt.Sprintf("%s expects a number, got %s", name, v.Kind()))
	}
	return v.AsNumber(), nil
}

func wantString(name string, v Value) (string, error) {
	if v.Kind() != KindString {
		return "", pkgerrors.NewTypeMismatch(fmt.Sprintf("%s expects a string, got %s", name, v.Kind()))
	}
	return v.AsString(), nil
}

func numericUnary(name string, fn func(float64) float64) Builtin {
	return func(args []Value) (Value, error) {
		if err := wantArgs(name, args, 1); err != nil {
			return Null(), err
		}
		n, err := wantNumber(name, args[0])
		if err != nil {
			return Null(), err
		}
		return Number(fn(n)), nil
	}
}

func (r *BuiltinRegistry) registerStandard() {
	r.Register("abs", numericUnary("abs", math.Abs))
	r.Register("floor", numericUnary("floor", math.Floor))
	r.Register("ceil", numericUnary("ceil", math.Ceil))
	r.Register("round", numericUnary("round", math.Round))

	r.Register("min", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Null(), pkgerrors.NewInvalidField("min expects at least 1 argument")
		}
		best := math.Inf(1)
		for _, arg := range args {
			n, err := wantNumber("min", arg)
			if err != nil {
				return Null(), err
			}
			best = math.Min(best, n)
		}
		return Number(best), nil
	})

	r.Register("max", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Null(), pkgerrors.NewInvalidField("max expects at least 1 argument")
		}
		best := math.Inf(-1)
		for _, arg := range args {
			n, err := wantNumber("max", arg)
			if err != nil {
				return Null(), err
			}
			best = math.Max(best, n)
		}
		return Number(best), nil
	})

	r.Register("len", func(args []Value) (Value, error) {
		if err := wantArgs("len", args, 1); err != nil {
			return Null(), err
		}
		switch args[0].Kind() {
		case KindString:
			return Number(float64(len(args[0].AsString()))), nil
		case KindObject:
			return Number(float64(args[0].AsObject().Len())), nil
		case KindArray:
			return Number(float64(len(args[0].AsArray()))), nil
		default:
			return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("len expects a string, object or array, got %s", args[0].Kind()))
		}
	})

	r.Register("concat", func(args []Value) (Value, error) {
		var sb strings.Builder
		for _, arg := range args {
			s, err := wantString("concat", arg)
			if err != nil {
				return Null(), err
			}
			sb.WriteString(s)
		}
		return String(sb.String()), nil
	})

	r.Register("upper", func(args []Value) (Value, error) {
		if err := wantArgs("upper", args, 1); err != nil {
			return Null(), err
		}
		s, err := wantString("upper", args[0])
		if err != nil {
			return Null(), err
		}
		return String(strings.ToUpper(s)), nil
	})

	r.Register("lower", func(args []Value) (Value, error) {
		if err := wantArgs("lower", args, 1); err != nil {
			return Null(), err
		}
		s, err := wantString("lower", args[0])
		if err != nil {
			return Null(), err
		}
		return String(strings.ToLower(s)), nil
	})

	// coalesce returns its first non-null argument, null when all are.
	r.Register("coalesce", func(args []Value) (Value, error) {
		for _, arg := range args {
			if !arg.IsNull() {
				return arg, nil
			}
		}
		return Null(), nil
	})
}
