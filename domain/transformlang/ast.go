package transformlang

// Expr is one node of the expression tree. The tree is the unit of
// evaluation: there is no statement list, a "program" folds into a single
// nested expression.
type Expr interface {
	exprNode()
}

// Literal is a constant value
type Literal struct {
	Value Value
}

// Variable is an environment lookup by name
type Variable struct {
	Name string
}

// FieldAccess reads a field out of an object expression. When Object is a
// bare Variable naming a schema, lookup falls back through the composite
// "schema.field" key, the object bound to the schema name, and finally the
// bare field name.
type FieldAccess struct {
	Object Expr
	Field  string
}

// BinaryOpKind enumerates the binary operators
type BinaryOpKind string

const (
	OpAdd BinaryOpKind = "+"
	OpSub BinaryOpKind = "-"
	OpMul BinaryOpKind = "*"
	OpDiv BinaryOpKind = "/"
	OpPow BinaryOpKind = "^"

	OpEq  BinaryOpKind = "="
	OpNeq BinaryOpKind = "!="
	OpLt  BinaryOpKind = "<"
	OpLte BinaryOpKind = "<="
	OpGt  BinaryOpKind = ">"
	OpGte BinaryOpKind = ">="

	OpAnd BinaryOpKind = "and"
	OpOr  BinaryOpKind = "or"
)

// BinaryOp applies an operator to two operands
type BinaryOp struct {
	Op    BinaryOpKind
	Left  Expr
	Right Expr
}

// UnaryOpKind enumerates the unary operators
type UnaryOpKind string

const (
	OpNegate UnaryOpKind = "-"
	OpNot    UnaryOpKind = "not"
)

// UnaryOp applies an operator to one operand
type UnaryOp struct {
	Op      UnaryOpKind
	Operand Expr
}

// FunctionCall dispatches to a registered built-in by name
type FunctionCall struct {
	Name string
	Args []Expr
}

// IfElse evaluates Then or Else depending on Cond. Else may be nil, in
// which case a false condition yields null.
type IfElse struct {
	Cond Expr
	Then Expr
	Else Expr
}

// LetBinding evaluates Value, binds Name in the current environment (no
// child scope), then evaluates Body. A Body that is literally the null
// literal marks a statement-style binding: the mutation persists and the
// bound value itself is the result.
type LetBinding struct {
	Name  string
	Value Expr
	Body  Expr
}

// Return evaluates and yields its operand
type Return struct {
	Value Expr
}

func (*Literal) exprNode()      {}
func (*Variable) exprNode()     {}
func (*FieldAccess) exprNode()  {}
func (*BinaryOp) exprNode()     {}
func (*UnaryOp) exprNode()      {}
func (*FunctionCall) exprNode() {}
func (*IfElse) exprNode()       {}
func (*LetBinding) exprNode()   {}
func (*Return) exprNode()       {}
