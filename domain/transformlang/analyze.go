package transformlang

// ExtractInputPaths statically walks an expression tree and collects the
// "Schema.field" paths it references, in first-appearance order without
// duplicates. Only field accesses on bare variables count: those are the
// schema-qualified reads a transform depends on. Used when a registration
// declares no inputs.
func ExtractInputPaths(expr Expr) []string {
	seen := make(map[string]bool)
	var paths []string
	collectPaths(expr, seen, &paths)
	return paths
}

// ExtractInputPathsFromSource parses and analyzes in one call
func ExtractInputPathsFromSource(source string) ([]string, error) {
	expr, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return ExtractInputPaths(expr), nil
}

func collectPaths(expr Expr, seen map[string]bool, paths *[]string) {
	switch e := expr.(type) {
	case *Literal, *Variable, nil:

	case *FieldAccess:
		if base, ok := e.Object.(*Variable); ok {
			path := base.Name + "." + e.Field
			if !seen[path] {
				seen[path] = true
				*paths = append(*paths, path)
			}
			return
		}
		collectPaths(e.Object, seen, paths)

	case *BinaryOp:
		collectPaths(e.Left, seen, paths)
		collectPaths(e.Right, seen, paths)

	case *UnaryOp:
		collectPaths(e.Operand, seen, paths)

	case *FunctionCall:
		for _, arg := range e.Args {
			collectPaths(arg, seen, paths)
		}

	case *IfElse:
		collectPaths(e.Cond, seen, paths)
		collectPaths(e.Then, seen, paths)
		collectPaths(e.Else, seen, paths)

	case *LetBinding:
		collectPaths(e.Value, seen, paths)
		collectPaths(e.Body, seen, paths)

	case *Return:
		collectPaths(e.Value, seen, paths)
	}
}
