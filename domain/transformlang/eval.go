package transformlang

import (
	"fmt"
	"math"

	pkgerrors "fluxstore/pkg/errors"
)

// Interpreter is the tree-walking evaluator for transform logic. It holds
// only the built-in function table; all data flows through the supplied
// environment, never a store.
type Interpreter struct {
	builtins *BuiltinRegistry
}

// NewInterpreter creates an interpreter with the standard built-ins
func NewInterpreter() *Interpreter {
	return &Interpreter{builtins: NewBuiltinRegistry()}
}

// NewInterpreterWith creates an interpreter with a caller-supplied
// function table
func NewInterpreterWith(builtins *BuiltinRegistry) *Interpreter {
	if builtins == nil {
		builtins = NewBuiltinRegistry()
	}
	return &Interpreter{builtins: builtins}
}

// EvaluateSource parses and evaluates transform source text in one call
func (in *Interpreter) EvaluateSource(source string, env *Environment) (Value, error) {
	expr, err := Parse(source)
	if err != nil {
		return Null(), err
	}
	return in.Evaluate(expr, env)
}

// Evaluate walks the expression tree against the environment. The first
// error aborts the whole evaluation.
func (in *Interpreter) Evaluate(expr Expr, env *Environment) (Value, error) {
	switch e := expr.(type) {
	case *Literal:
		return e.Value, nil

	case *Variable:
		v, ok := env.Lookup(e.Name)
		if !ok {
			return Null(), pkgerrors.NewInvalidField("unknown variable: " + e.Name)
		}
		return v, nil

	case *FieldAccess:
		return in.evalFieldAccess(e, env)

	case *BinaryOp:
		return in.evalBinaryOp(e, env)

	case *UnaryOp:
		return in.evalUnaryOp(e, env)

	case *FunctionCall:
		return in.evalCall(e, env)

	case *IfElse:
		cond, err := in.Evaluate(e.Cond, env)
		if err != nil {
			return Null(), err
		}
		if cond.Kind() != KindBool {
			return Null(), pkgerrors.NewTypeMismatch("if condition must be boolean, got " + cond.Kind().String())
		}
		if cond.AsBool() {
			return in.Evaluate(e.Then, env)
		}
		if e.Else == nil {
			return Null(), nil
		}
		return in.Evaluate(e.Else, env)

	case *LetBinding:
		value, err := in.Evaluate(e.Value, env)
		if err != nil {
			return Null(), err
		}
		// No child scope: the binding mutates the current environment so
		// later statements in the same body see it.
		env.Bind(e.Name, value)
		if lit, ok := e.Body.(*Literal); ok && lit.Value.IsNull() {
			// Statement-style binding: keep the mutation and yield the
			// bound value itself rather than the null body.
			return value, nil
		}
		return in.Evaluate(e.Body, env)

	case *Return:
		return in.Evaluate(e.Value, env)

	default:
		return Null(), pkgerrors.NewInternal(fmt.Sprintf("unknown expression node %T", expr), nil)
	}
}

// evalFieldAccess resolves object.field. When the object is a bare
// variable naming a schema, resolution tries in order the composite
// "schema.field" key, a field inside an object bound to the schema name,
// and a bare field binding, before giving up.
func (in *Interpreter) evalFieldAccess(e *FieldAccess, env *Environment) (Value, error) {
	if base, ok := e.Object.(*Variable); ok {
		if v, found := env.Lookup(base.Name + "." + e.Field); found {
			return v, nil
		}
		if bound, found := env.Lookup(base.Name); found && bound.Kind() == KindObject {
			if v, has := bound.AsObject().Get(e.Field); has {
				return v, nil
			}
		}
		if v, found := env.Lookup(e.Field); found {
			return v, nil
		}
		return Null(), pkgerrors.NewInvalidField(fmt.Sprintf("cannot resolve field %s.%s", base.Name, e.Field))
	}

	obj, err := in.Evaluate(e.Object, env)
	if err != nil {
		return Null(), err
	}
	if obj.Kind() != KindObject {
		return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("cannot access field %q on %s", e.Field, obj.Kind()))
	}
	v, ok := obj.AsObject().Get(e.Field)
	if !ok {
		return Null(), pkgerrors.NewInvalidField("object has no field: " + e.Field)
	}
	return v, nil
}

func (in *Interpreter) evalBinaryOp(e *BinaryOp, env *Environment) (Value, error) {
	left, err := in.Evaluate(e.Left, env)
	if err != nil {
		return Null(), err
	}
	right, err := in.Evaluate(e.Right, env)
	if err != nil {
		return Null(), err
	}

	switch e.Op {
	case OpAdd:
		if left.Kind() == KindString && right.Kind() == KindString {
			return String(left.AsString() + right.AsString()), nil
		}
		return numericOp(e.Op, left, right)

	case OpSub, OpMul, OpDiv, OpPow:
		return numericOp(e.Op, left, right)

	case OpEq:
		return Bool(left.Equal(right)), nil
	case OpNeq:
		return Bool(!left.Equal(right)), nil

	case OpLt, OpLte, OpGt, OpGte:
		return orderedOp(e.Op, left, right)

	case OpAnd, OpOr:
		if left.Kind() != KindBool || right.Kind() != KindBool {
			return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("%s requires boolean operands, got %s and %s", e.Op, left.Kind(), right.Kind()))
		}
		if e.Op == OpAnd {
			return Bool(left.AsBool() && right.AsBool()), nil
		}
		return Bool(left.AsBool() || right.AsBool()), nil

	default:
		return Null(), pkgerrors.NewInternal("unknown binary operator: "+string(e.Op), nil)
	}
}

func numericOp(op BinaryOpKind, left, right Value) (Value, error) {
	if left.Kind() != KindNumber || right.Kind() != KindNumber {
		return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("%s requires numeric operands, got %s and %s", op, left.Kind(), right.Kind()))
	}
	l, r := left.AsNumber(), right.AsNumber()
	switch op {
	case OpAdd:
		return Number(l + r), nil
	case OpSub:
		return Number(l - r), nil
	case OpMul:
		return Number(l * r), nil
	case OpDiv:
		if r == 0 {
			return Null(), pkgerrors.NewDivisionByZero(fmt.Sprintf("division by zero: %g / 0", l))
		}
		return Number(l / r), nil
	case OpPow:
		return Number(math.Pow(l, r)), nil
	default:
		return Null(), pkgerrors.NewInternal("unknown numeric operator: "+string(op), nil)
	}
}

func orderedOp(op BinaryOpKind, left, right Value) (Value, error) {
	switch {
	case left.Kind() == KindNumber && right.Kind() == KindNumber:
		return compareResult(op, compareFloats(left.AsNumber(), right.AsNumber())), nil
	case left.Kind() == KindString && right.Kind() == KindString:
		return compareResult(op, compareStrings(left.AsString(), right.AsString())), nil
	default:
		return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("%s requires two numbers or two strings, got %s and %s", op, left.Kind(), right.Kind()))
	}
}

func compareFloats(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func compareStrings(l, r string) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func compareResult(op BinaryOpKind, cmp int) Value {
	switch op {
	case OpLt:
		return Bool(cmp < 0)
	case OpLte:
		return Bool(cmp <= 0)
	case OpGt:
		return Bool(cmp > 0)
	default:
		return Bool(cmp >= 0)
	}
}

func (in *Interpreter) evalUnaryOp(e *UnaryOp, env *Environment) (Value, error) {
	operand, err := in.Evaluate(e.Operand, env)
	if err != nil {
		return Null(), err
	}
	switch e.Op {
	case OpNegate:
		if operand.Kind() != KindNumber {
			return Null(), pkgerrors.NewTypeMismatch("negation requires a number, got " + operand.Kind().String())
		}
		return Number(-operand.AsNumber()), nil
	case OpNot:
		if operand.Kind() != KindBool {
			return Null(), pkgerrors.NewTypeMismatch("not requires a boolean, got " + operand.Kind().String())
		}
		return Bool(!operand.AsBool()), nil
	default:
		return Null(), pkgerrors.NewInternal("unknown unary operator: "+string(e.Op), nil)
	}
}

func (in *Interpreter) evalCall(e *FunctionCall, env *Environment) (Value, error) {
	fn, ok := in.builtins.Lookup(e.Name)
	if !ok {
		return Null(), pkgerrors.NewInvalidField("unknown function: " + e.Name)
	}
	// Arguments evaluate left to right before dispatch.
	args := make([]Value, len(e.Args))
	for i, argExpr := range e.Args {
		arg, err := in.Evaluate(argExpr, env)
		if err != nil {
			return Null(), err
		}
		args[i] = arg
	}
	return fn(args)
}
