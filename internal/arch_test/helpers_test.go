package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

const internalImportPrefix = "github.com/papapumpkin/asp/internal/"

// internalDirPath returns the absolute path of internal/, found relative to
// this source file.
func internalDirPath(t *testing.T) string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(filepath.Dir(self))
}

// repoRoot is the module root, the parent of internal/.
func repoRoot(t *testing.T) string {
	t.Helper()
	root := filepath.Dir(internalDirPath(t))
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("no go.mod above internal/: %v", err)
	}
	return root
}

// internalPackages lists the package directories under internal/ that hold
// at least one non-test .go file, arch_test excluded.
func internalPackages(t *testing.T) []string {
	t.Helper()
	dir := internalDirPath(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var pkgs []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "arch_test" {
			continue
		}
		if len(goFilesIn(t, filepath.Join(dir, e.Name()))) > 0 {
			pkgs = append(pkgs, e.Name())
		}
	}
	return pkgs
}

// goFilesIn returns the non-test .go files in dir.
func goFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	return listGo(t, dir, false)
}

func listGo(t *testing.T, dir string, withTests bool) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if !withTests && strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files
}

// parse parses path, failing the test on error.
func parse(t *testing.T, fset *token.FileSet, path string, mode parser.Mode) *ast.File {
	t.Helper()
	node, err := parser.ParseFile(fset, path, nil, mode)
	if err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	return node
}

// importsOf returns the sorted internal packages imported by pkgDir's
// non-test files, by first path element after internal/.
func importsOf(t *testing.T, pkgDir string) []string {
	t.Helper()
	fset := token.NewFileSet()
	var out []string
	for _, f := range goFilesIn(t, pkgDir) {
		for _, imp := range parse(t, fset, f, parser.ImportsOnly).Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			rel, ok := strings.CutPrefix(path, internalImportPrefix)
			if !ok {
				continue
			}
			rel, _, _ = strings.Cut(rel, "/")
			out = append(out, rel)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// docText returns the text of the first non-nil comment group.
func docText(groups ...*ast.CommentGroup) string {
	for _, g := range groups {
		if g != nil {
			return g.Text()
		}
	}
	return ""
}

// interfaceDecl is an interface type and its method names.
type interfaceDecl struct {
	Name    string
	Methods []string
}

// interfaceDecls returns the interface types declared in file.
func interfaceDecls(file *ast.File) []interfaceDecl {
	var decls []interfaceDecl
	for _, d := range file.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			iface, ok := ts.Type.(*ast.InterfaceType)
			if !ok {
				continue
			}
			decl := interfaceDecl{Name: ts.Name.Name}
			for _, m := range iface.Methods.List {
				for _, name := range m.Names {
					decl.Methods = append(decl.Methods, name.Name)
				}
			}
			decls = append(decls, decl)
		}
	}
	return decls
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	pkgs := internalPackages(t)
	for _, want := range []string{"harness", "install", "materialize", "ref", "store"} {
		if !slices.Contains(pkgs, want) {
			t.Errorf("internalPackages() = %v, missing %s", pkgs, want)
		}
	}
	if slices.Contains(pkgs, "arch_test") {
		t.Error("internalPackages() includes arch_test")
	}

	dir := internalDirPath(t)
	if imps := importsOf(t, filepath.Join(dir, "claude")); !slices.Contains(imps, "harness") {
		t.Errorf("importsOf(claude) = %v, want harness among them", imps)
	}

	file := parse(t, token.NewFileSet(), filepath.Join(dir, "harness", "harness.go"), 0)
	var adapter *interfaceDecl
	for _, d := range interfaceDecls(file) {
		if d.Name == "Adapter" {
			adapter = &d
		}
	}
	if adapter == nil || len(adapter.Methods) == 0 {
		t.Errorf("interfaceDecls(harness.go) = %v, want Adapter with methods", interfaceDecls(file))
	}
}
