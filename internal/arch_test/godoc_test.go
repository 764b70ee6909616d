package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// TestExportedSymbolsHaveGoDoc requires a doc comment starting with the
// symbol name on every exported declaration in internal packages. Members
// of a grouped const or var block may instead share the block's comment or
// carry a trailing one.
func TestExportedSymbolsHaveGoDoc(t *testing.T) {
	t.Parallel()

	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()
			fset := token.NewFileSet()
			for _, path := range goFilesIn(t, filepath.Join(dir, pkg)) {
				file := parse(t, fset, path, parser.ParseComments)
				if ast.IsGenerated(file) {
					continue
				}
				for _, m := range undocumented(file) {
					pos := fset.Position(m.pos)
					t.Errorf("%s/%s:%d: exported %s %s has no GoDoc comment",
						pkg, filepath.Base(path), pos.Line, m.kind, m.name)
				}
			}
		})
	}
}

type missingDoc struct {
	kind, name string
	pos        token.Pos
}

// undocumented returns the exported declarations in file lacking GoDoc.
func undocumented(file *ast.File) []missingDoc {
	var out []missingDoc
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !d.Name.IsExported() || (d.Recv != nil && !exportedRecv(d.Recv.List[0].Type)) {
				continue
			}
			if !startsWith(docText(d.Doc), d.Name.Name) {
				kind := "func"
				if d.Recv != nil {
					kind = "method"
				}
				out = append(out, missingDoc{kind, d.Name.Name, d.Pos()})
			}
		case *ast.GenDecl:
			grouped := len(d.Specs) > 1
			blockDoc := strings.TrimSpace(docText(d.Doc)) != ""
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.IsExported() && !startsWith(docText(s.Doc, d.Doc), s.Name.Name) {
						out = append(out, missingDoc{"type", s.Name.Name, s.Pos()})
					}
				case *ast.ValueSpec:
					for _, name := range s.Names {
						if !name.IsExported() {
							continue
						}
						ok := startsWith(docText(s.Doc, d.Doc), name.Name)
						if grouped {
							ok = startsWith(docText(s.Doc), name.Name) || blockDoc || s.Comment != nil
						}
						if !ok {
							out = append(out, missingDoc{d.Tok.String(), name.Name, name.Pos()})
						}
					}
				}
			}
		}
	}
	return out
}

func startsWith(doc, name string) bool {
	return strings.HasPrefix(strings.TrimSpace(doc), name)
}

// exportedRecv reports whether a receiver's base type, generic or
// pointer, is exported.
func exportedRecv(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.IsExported()
	case *ast.StarExpr:
		return exportedRecv(t.X)
	case *ast.IndexExpr:
		return exportedRecv(t.X)
	case *ast.IndexListExpr:
		return exportedRecv(t.X)
	}
	return false
}

func TestUndocumented(t *testing.T) {
	t.Parallel()

	src := `package p

// Documented does things.
func Documented() {}

func Bare() {}

type hidden struct{}

func (hidden) Method() {}

// Options configure p.
type Options struct{}

const (
	A = 1 // trailing
	B = 2
)

var Loose = 3
`
	file, err := parser.ParseFile(token.NewFileSet(), "p.go", src, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range undocumented(file) {
		got = append(got, m.kind+" "+m.name)
	}
	want := "func Bare,const B,var Loose"
	if strings.Join(got, ",") != want {
		t.Errorf("undocumented = %v, want %s", got, want)
	}
}
