package processor

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strings"
)

// StructTagValidator checks fieldcrypt struct tags in Go source without
// compiling it.
type StructTagValidator struct {
	knownAlgorithm func(name string) bool
	errors         []string
}

// NewStructTagValidator returns a validator. knownAlgorithm may be nil, in
// which case algorithm names are not checked.
func NewStructTagValidator(knownAlgorithm func(name string) bool) *StructTagValidator {
	return &StructTagValidator{knownAlgorithm: knownAlgorithm}
}

// ValidateSourceFile validates all fieldcrypt struct tags in a Go source file.
func (v *StructTagValidator) ValidateSourceFile(filename string) error {
	return v.ValidateSource(filename, nil)
}

// ValidateSource validates src, or the file when src is nil.
func (v *StructTagValidator) ValidateSource(filename string, src any) error {
	v.errors = nil

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse file %s: %w", filename, err)
	}

	textTypes := stringTypes(node)
	ast.Inspect(node, func(n ast.Node) bool {
		if st, ok := n.(*ast.StructType); ok && st.Fields != nil {
			for _, field := range st.Fields.List {
				v.validateField(fset, field, textTypes)
			}
		}
		return true
	})

	if len(v.errors) > 0 {
		return fmt.Errorf("struct tag validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *StructTagValidator) validateField(fset *token.FileSet, field *ast.Field, textTypes map[string]bool) {
	if field.Tag == nil || len(field.Tag.Value) < 2 {
		return
	}
	tag, ok := reflect.StructTag(field.Tag.Value[1 : len(field.Tag.Value)-1]).Lookup(StructTag)
	if !ok {
		return
	}

	pos := fset.Position(field.Pos())
	fieldName := "<embedded>"
	if len(field.Names) > 0 {
		fieldName = field.Names[0].Name
	}

	opts, err := ParseTag(tag)
	if err != nil {
		v.addError(pos, fieldName, err.Error())
		return
	}
	if !isStringExpr(field.Type, textTypes) {
		v.addError(pos, fieldName, fmt.Sprintf("'%s' tag requires a string or *string field", StructTag))
	}
	if v.knownAlgorithm != nil {
		for _, name := range []string{opts.Algorithm, opts.Strategy} {
			if name != "" && !v.knownAlgorithm(name) {
				v.addError(pos, fieldName, fmt.Sprintf("unknown algorithm '%s'", name))
			}
		}
	}
}

func isStringExpr(expr ast.Expr, textTypes map[string]bool) bool {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	ident, ok := expr.(*ast.Ident)
	return ok && (ident.Name == "string" || textTypes[ident.Name])
}

// stringTypes returns the types declared in file whose underlying type is
// string, following chains such as `type A B; type B string`. Types from
// other files or packages are not visible here.
func stringTypes(file *ast.File) map[string]bool {
	underlying := make(map[string]string)
	ast.Inspect(file, func(n ast.Node) bool {
		if ts, ok := n.(*ast.TypeSpec); ok {
			if ident, ok := ts.Type.(*ast.Ident); ok {
				underlying[ts.Name.Name] = ident.Name
			}
		}
		return true
	})

	out := make(map[string]bool)
	for name := range underlying {
		seen := map[string]bool{}
		for cur := name; !seen[cur]; cur = underlying[cur] {
			seen[cur] = true
			if cur == "string" {
				out[name] = true
				break
			}
		}
	}
	return out
}

func (v *StructTagValidator) addError(pos token.Position, fieldName, message string) {
	v.errors = append(v.errors, fmt.Sprintf("%s: field '%s': %s", pos, fieldName, message))
}
