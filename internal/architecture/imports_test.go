package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// layerRules maps a directory under internal/ to the internal packages it
// must never import.
var layerRules = []struct {
	layer     string
	forbidden []string
}{
	{"domain", []string{"platform/", "data/", "services", "http", "jobs/", "app"}},
	{"platform", []string{"domain", "data/", "services", "http", "jobs/", "realtime", "app"}},
	{"data", []string{"services", "http", "jobs/", "app"}},
	{"services", []string{"http", "jobs/", "app"}},
	{"jobs", []string{"http", "app"}},
	{"http", []string{"jobs/", "app"}},
}

type importRef struct {
	file string // module-relative, slash separated
	path string
}

var module struct {
	once sync.Once
	root string
	path string
	err  error
}

func moduleInfo(t *testing.T) (root, path string) {
	t.Helper()
	module.once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			module.err = err
			return
		}
		if module.root, module.err = findModuleRoot(wd); module.err != nil {
			return
		}
		module.path, module.err = readModulePath(filepath.Join(module.root, "go.mod"))
	})
	if module.err != nil {
		t.Fatalf("locate module: %v", module.err)
	}
	return module.root, module.path
}

// importsUnder lists every import of every .go file below dir.
func importsUnder(t *testing.T, root, dir string, withTests bool) []importRef {
	t.Helper()
	fset := token.NewFileSet()
	var refs []importRef
	err := filepath.WalkDir(filepath.Join(root, dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".go") {
			return err
		}
		if !withTests && strings.HasSuffix(p, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, p, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				refs = append(refs, importRef{file: filepath.ToSlash(rel), path: imp})
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return refs
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleInfo(t)
	internal := modulePath + "/internal/"

	var problems []string
	for _, rule := range layerRules {
		dir := filepath.Join("internal", rule.layer)
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			continue
		}
		for _, ref := range importsUnder(t, root, dir, true) {
			for _, bad := range rule.forbidden {
				if strings.HasPrefix(ref.path, internal+bad) {
					problems = append(problems, fmt.Sprintf("- %s imports %q (%s must not import %s)", ref.file, ref.path, rule.layer, bad))
					break
				}
			}
		}
	}
	if len(problems) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(problems, "\n"))
	}
}

// Handlers reach storage only through services; tests may seed fixtures.
func TestHTTPDoesNotImportRepos(t *testing.T) {
	root, modulePath := moduleInfo(t)
	var problems []string
	for _, ref := range importsUnder(t, root, filepath.Join("internal", "http"), false) {
		if strings.HasPrefix(ref.path, modulePath+"/internal/data/") {
			problems = append(problems, fmt.Sprintf("- %s imports %q", ref.file, ref.path))
		}
	}
	if len(problems) > 0 {
		t.Fatalf("internal/http must go through services:\n%s", strings.Join(problems, "\n"))
	}
}

func findModuleRoot(dir string) (string, error) {
	for start := dir; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", start)
		}
		dir = parent
	}
}

func readModulePath(goMod string) (string, error) {
	f, err := os.Open(goMod)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "module "); ok {
			if mp := strings.TrimSpace(rest); mp != "" {
				return mp, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no module directive in %s", goMod)
}
