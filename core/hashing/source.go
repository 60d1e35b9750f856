package hashing

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const parsedFileCacheSize = 128

type parsedFile struct {
	src  []byte
	fset *token.FileSet
	file *ast.File
}

var (
	filesOnce sync.Once
	files     *lru.Cache[string, *parsedFile]
)

func fileCache() *lru.Cache[string, *parsedFile] {
	filesOnce.Do(func() {
		// size is a positive constant, New cannot fail
		files, _ = lru.New[string, *parsedFile](parsedFileCacheSize)
	})
	return files
}

// SpecOf derives a Spec from a function value.
func SpecOf(fn any) (Spec, bool) {
	if fn == nil {
		return Spec{}, false
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Spec{}, false
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return Spec{}, false
	}
	module, qual := splitSymbol(rf.Name())
	path, line := rf.FileLine(rf.Entry())
	src, ok := functionSource(path, line)
	if !ok {
		return Spec{}, false
	}
	return Spec{
		Source:   src,
		Module:   module,
		QualName: qual,
		Name:     shortName(qual),
	}, true
}

// splitSymbol splits "example.com/pkg.(*T).Method" into package path and
// the qualified name within the package.
func splitSymbol(sym string) (string, string) {
	slash := strings.LastIndex(sym, "/")
	dot := strings.Index(sym[slash+1:], ".")
	if dot < 0 {
		return "", sym
	}
	cut := slash + 1 + dot
	return sym[:cut], sym[cut+1:]
}

func shortName(qual string) string {
	if i := strings.LastIndex(qual, "."); i >= 0 {
		return qual[i+1:]
	}
	return qual
}

// functionSource returns the text of the function declared or literal starting at line.
func functionSource(path string, line int) (string, bool) {
	if path == "" || strings.HasPrefix(path, "<") || !strings.HasSuffix(path, ".go") {
		return "", false
	}
	pf, ok := loadFile(path)
	if !ok {
		return "", false
	}
	var found, enclosing ast.Node
	ast.Inspect(pf.file, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			start := pf.fset.Position(n.Pos()).Line
			end := pf.fset.Position(n.End()).Line
			if start == line {
				found = n
				return false
			}
			if start <= line && line <= end {
				enclosing = n
				return true
			}
			return false
		}
		return true
	})
	if found == nil {
		found = enclosing
	}
	if found == nil {
		return "", false
	}
	start := pf.fset.Position(found.Pos()).Offset
	end := pf.fset.Position(found.End()).Offset
	if start < 0 || end > len(pf.src) || start >= end {
		return "", false
	}
	return string(pf.src[start:end]), true
}

func loadFile(path string) (*parsedFile, bool) {
	c := fileCache()
	if pf, ok := c.Get(path); ok {
		return pf, true
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, false
	}
	pf := &parsedFile{src: src, fset: fset, file: f}
	c.Add(path, pf)
	return pf, true
}
