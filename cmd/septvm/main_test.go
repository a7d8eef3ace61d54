package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/moduleformat"
	"github.com/septvm/septvm/pkg/value"
)

func TestFormatConstant(t *testing.T) {
	require.Equal(t, "nothing", formatConstant(value.Nothing()))
	require.Equal(t, value.Int(5).String(), formatConstant(value.Int(5)))
	require.Equal(t, value.Bool(true).String(), formatConstant(value.Bool(true)))
}

func TestParamFlagsSuffix(t *testing.T) {
	cases := []struct {
		name  string
		flags code.ParamFlag
		want  string
	}{
		{"plain", 0, ""},
		{"lazy", code.FlagLazy, "*"},
		{"rest", code.FlagRest, "..."},
		{"namedOnly", code.FlagNamedOnly, ":"},
		{"hasDefault", code.FlagHasDefault, "?"},
		{"lazyAndDefault", code.FlagLazy | code.FlagHasDefault, "*?"},
	}
	for _, c := range cases {
		p := code.ParameterDescriptor{Name: "x", Flags: c.flags}
		require.Equal(t, c.want, paramFlagsSuffix(p), c.name)
	}
}

func TestLoadModuleFileRoundTripsAnEncodedModule(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sample.spvm"

	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := code.NewModule("sample")
	mod.Root = code.NewCodeBlock(mgr, "main")
	mod.Root.Module = mod
	mod.Root.Instructions = []code.Instruction{{Op: code.OpPushNothing}, {Op: code.OpReturn}}

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, moduleformat.Encode(f, mod))
	require.NoError(t, f.Close())

	got := loadModuleFile(path)
	require.Equal(t, "sample", got.Name)
	require.Equal(t, mod.Root.Instructions, got.Root.Instructions)
}
