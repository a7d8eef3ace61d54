// Package natives implements discovery and loading of September native
// modules: compiled Go plugins (.so) exposing a well-known
// ModuleInitialize symbol, per spec.md §6.2.
//
// Grounded on SPEC_FULL.md §6.2's design note: true C-ABI dlopen plus raw
// symbol invocation (the spec's C-flavored module_initialize(Scope*)
// signature) has no portable third-party Go library in this pack or its
// example set; the standard library's plugin package is the idiomatic Go
// mechanism for this exact shape of problem — discover a .so, resolve one
// well-known exported symbol, call it — and is used here as a deliberate,
// justified stdlib choice (see DESIGN.md).
package natives

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"

	"github.com/septvm/septvm/pkg/object"
)

// InitializerSymbol is the well-known exported symbol every native module
// must provide.
const InitializerSymbol = "ModuleInitialize"

// Initializer is the signature a native module's ModuleInitialize symbol
// must have: given the module's Scope object, install whatever
// fields/methods the native module exposes onto it.
type Initializer func(scope *object.Object) error

// ErrMissingSymbol reports a .so that opened fine but does not export
// ModuleInitialize, or exports it under the wrong type.
var ErrMissingSymbol = errors.New("natives: module does not export ModuleInitialize")

// Discover lists every .so file directly inside dir (no recursion), sorted
// by name for a deterministic load order.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".so" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Load opens the plugin at path and resolves its ModuleInitialize symbol.
func Load(path string) (Initializer, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("natives: opening %s: %w", path, err)
	}
	sym, err := p.Lookup(InitializerSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingSymbol, path, err)
	}
	fn, ok := sym.(func(*object.Object) error)
	if !ok {
		return nil, fmt.Errorf("%w: %s: wrong symbol type", ErrMissingSymbol, path)
	}
	return Initializer(fn), nil
}

// LoadAll discovers and loads every native module under dir, applying each
// one's Initializer to scope in discovery order. A missing dir is not an
// error (native modules are optional); the first load/initialize failure
// aborts the remaining ones and is returned to the caller; cmd/septvm
// reports it under the ENativeModuleError class name and exits.
func LoadAll(dir string, scope *object.Object) error {
	paths, err := Discover(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, path := range paths {
		init, err := Load(path)
		if err != nil {
			return err
		}
		if err := init(scope); err != nil {
			return fmt.Errorf("natives: %s: ModuleInitialize failed: %w", path, err)
		}
	}
	return nil
}
