package transformlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "fluxstore/pkg/errors"
)

func evalSource(t *testing.T, source string, env *Environment) (Value, error) {
	t.Helper()
	if env == nil {
		env = NewEnvironment()
	}
	return NewInterpreter().EvaluateSource(source, env)
}

func TestInterpreter_Arithmetic(t *testing.T) {
	// Arrange
	cases := []struct {
		source   string
		expected float64
	}{
		{"1 + 2", 3},
		{"10 - 4", 6},
		{"3 * 4", 12},
		{"10 / 4", 2.5},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512}, // right-associative
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"-5 + 3", -2},
	}

	for _, tc := range cases {
		// Act
		result, err := evalSource(t, tc.source, nil)

		// Assert
		require.NoError(t, err, tc.source)
		assert.Equal(t, Number(tc.expected), result, tc.source)
	}
}

func TestInterpreter_DivisionByZero(t *testing.T) {
	// Act
	_, err := evalSource(t, "1 / 0", nil)

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsDivisionByZero(err))
}

func TestInterpreter_StringConcatenationWithPlus(t *testing.T) {
	// Act
	result, err := evalSource(t, `"flux" + "store"`, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, String("fluxstore"), result)
}

func TestInterpreter_MixedTypeAdditionFails(t *testing.T) {
	// Act
	_, err := evalSource(t, `1 + "2"`, nil)

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTypeMismatch(err))
}

func TestInterpreter_Comparisons(t *testing.T) {
	cases := []struct {
		source   string
		expected bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"4 >= 4", true},
		{"1 = 1", true},
		{"1 != 1", false},
		{`"a" < "b"`, true},
		{`"a" = "a"`, true},
		{"null = null", true},
		{"1 = null", false},
	}

	for _, tc := range cases {
		result, err := evalSource(t, tc.source, nil)
		require.NoError(t, err, tc.source)
		assert.Equal(t, Bool(tc.expected), result, tc.source)
	}
}

func TestInterpreter_OrderingRequiresMatchingTypes(t *testing.T) {
	_, err := evalSource(t, `1 < "2"`, nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsTypeMismatch(err))
}

func TestInterpreter_BooleanLogic(t *testing.T) {
	cases := []struct {
		source   string
		expected bool
	}{
		{"true and false", false},
		{"true or false", true},
		{"not true", false},
		{"1 < 2 and 2 < 3", true},
	}

	for _, tc := range cases {
		result, err := evalSource(t, tc.source, nil)
		require.NoError(t, err, tc.source)
		assert.Equal(t, Bool(tc.expected), result, tc.source)
	}
}

func TestInterpreter_LogicRequiresBooleans(t *testing.T) {
	_, err := evalSource(t, "1 and true", nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsTypeMismatch(err))
}

func TestInterpreter_IfThenElse(t *testing.T) {
	// Arrange
	env := NewEnvironment()
	env.Bind("x", Number(10))

	// Act
	result, err := evalSource(t, "if x > 5 then x * 2 else 0", env)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Number(20), result)
}

func TestInterpreter_IfWithoutElseYieldsNull(t *testing.T) {
	result, err := evalSource(t, "if false then 1", nil)

	require.NoError(t, err)
	assert.True(t, result.IsNull())
}

func TestInterpreter_IfConditionMustBeBoolean(t *testing.T) {
	_, err := evalSource(t, "if 1 then 2 else 3", nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsTypeMismatch(err))
}

func TestInterpreter_LetBindingVisibleToLaterStatements(t *testing.T) {
	// Act
	result, err := evalSource(t, "let a = 2; let b = a * 3; a + b", nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Number(8), result)
}

func TestInterpreter_TrailingLetReturnsBoundValue(t *testing.T) {
	// A program that ends on a let yields the bound value, and the
	// binding survives in the environment.
	env := NewEnvironment()

	result, err := evalSource(t, "let total = 6 * 7", env)

	require.NoError(t, err)
	assert.Equal(t, Number(42), result)

	bound, ok := env.Lookup("total")
	require.True(t, ok)
	assert.Equal(t, Number(42), bound)
}

func TestInterpreter_ReturnStatement(t *testing.T) {
	result, err := evalSource(t, "let x = 4; return x * x", nil)

	require.NoError(t, err)
	assert.Equal(t, Number(16), result)
}

func TestInterpreter_UnknownVariable(t *testing.T) {
	_, err := evalSource(t, "missing + 1", nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalidField(err))
}

func TestInterpreter_FieldAccessResolution(t *testing.T) {
	// The composite "schema.field" binding wins; then an object bound to
	// the schema name; then the bare field name.
	t.Run("composite key", func(t *testing.T) {
		env := NewEnvironment()
		env.Bind("Order.total", Number(99))

		result, err := evalSource(t, "Order.total", env)

		require.NoError(t, err)
		assert.Equal(t, Number(99), result)
	})

	t.Run("object binding", func(t *testing.T) {
		env := NewEnvironment()
		obj := NewObject()
		obj.Set("total", Number(55))
		env.Bind("Order", ObjectValue(obj))

		result, err := evalSource(t, "Order.total", env)

		require.NoError(t, err)
		assert.Equal(t, Number(55), result)
	})

	t.Run("bare field fallback", func(t *testing.T) {
		env := NewEnvironment()
		env.Bind("total", Number(11))

		result, err := evalSource(t, "Order.total", env)

		require.NoError(t, err)
		assert.Equal(t, Number(11), result)
	})

	t.Run("unresolvable", func(t *testing.T) {
		_, err := evalSource(t, "Order.total", NewEnvironment())

		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalidField(err))
	})
}

func TestInterpreter_Builtins(t *testing.T) {
	cases := []struct {
		source   string
		expected Value
	}{
		{"abs(-3)", Number(3)},
		{"floor(2.7)", Number(2)},
		{"ceil(2.1)", Number(3)},
		{"round(2.5)", Number(3)},
		{"min(3, 1, 2)", Number(1)},
		{"max(3, 1, 2)", Number(3)},
		{`len("hello")`, Number(5)},
		{`concat("a", "b", "c")`, String("abc")},
		{`upper("go")`, String("GO")},
		{`lower("GO")`, String("go")},
		{"coalesce(null, null, 7)", Number(7)},
	}

	for _, tc := range cases {
		result, err := evalSource(t, tc.source, nil)
		require.NoError(t, err, tc.source)
		assert.Equal(t, tc.expected, result, tc.source)
	}
}

func TestInterpreter_UnknownFunction(t *testing.T) {
	_, err := evalSource(t, "bogus(1)", nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalidField(err))
}

func TestInterpreter_ArrayValues(t *testing.T) {
	// Arrange: an array-valued input, as a collection read produces
	env := NewEnvironment()
	items, err := FromInterface([]interface{}{1.0, 2.0, 3.0})
	require.NoError(t, err)
	env.Bind("items", items)

	// Act / Assert: length and equality work on arrays
	result, err := evalSource(t, "len(items)", env)
	require.NoError(t, err)
	assert.Equal(t, Number(3), result)

	assert.True(t, items.Equal(Array([]Value{Number(1), Number(2), Number(3)})))
	assert.False(t, items.Equal(Array([]Value{Number(1), Number(2)})))

	// Round-trips back to the representation atoms are stored in
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, ToInterface(items))
}

func TestInterpreter_ArrayArithmeticFails(t *testing.T) {
	// Arrange
	env := NewEnvironment()
	items, err := FromInterface([]interface{}{"a", "b"})
	require.NoError(t, err)
	env.Bind("items", items)

	// Act
	_, err = evalSource(t, "items + 1", env)

	// Assert
	assert.True(t, pkgerrors.IsTypeMismatch(err))
}
