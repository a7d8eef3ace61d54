// Command septvm is the September VM's command-line driver: run a compiled
// module, disassemble one for inspection, or print version/help.
//
// Adapted from the teacher's cmd/smog/main.go: the flag-less os.Args-switch
// dispatch and the disassemble/formatConstant pretty-printing style are
// kept. The teacher's source-parsing commands (repl, compile, running a
// .sg *source* file) have no equivalent here — this repo never parses
// September source (spec.md §1); "run" and "disasm" both consume the
// binary module format of SPEC_FULL.md §6.1 directly.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/moduleformat"
	"github.com/septvm/septvm/pkg/natives"
	"github.com/septvm/septvm/pkg/value"
	"github.com/septvm/septvm/pkg/vm"
	"github.com/septvm/septvm/pkg/vmlog"
)

const version = "0.1.0"

func main() {
	defer recoverFatal()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("septvm %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "run":
		runCommand(os.Args[2:])
	case "disasm", "disassemble":
		disasmCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "septvm: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("septvm - the September VM")
	fmt.Println()
	fmt.Println("usage:")
	fmt.Println("  septvm run [--debug] [--natives DIR] <module.spvm>   run a compiled module")
	fmt.Println("  septvm disasm <module.spvm>                         disassemble a module")
	fmt.Println("  septvm version                                      print the version")
	fmt.Println("  septvm help                                         print this message")
}

// recoverFatal catches a *vm.FatalError or *heap.FatalError panic (a VM
// integrity failure no September-level handler could ever have caught),
// reports it, and exits 1 instead of crashing with a Go stack trace.
func recoverFatal() {
	r := recover()
	if r == nil {
		return
	}
	switch e := r.(type) {
	case *vm.FatalError:
		fmt.Fprintf(os.Stderr, "septvm: %s\n", e.Error())
		os.Exit(1)
	case *heap.FatalError:
		fmt.Fprintf(os.Stderr, "septvm: %s\n", e.Error())
		os.Exit(1)
	default:
		panic(r)
	}
}

func runCommand(args []string) {
	var debug bool
	var nativesDir string
	var path string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug":
			debug = true
		case "--natives":
			i++
			if i < len(args) {
				nativesDir = args[i]
			}
		default:
			path = args[i]
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "septvm run: no module file given")
		printUsage()
		os.Exit(1)
	}

	mod := loadModuleFile(path)

	logLevel := vmlog.LevelWarn
	if debug {
		logLevel = vmlog.LevelDebug
	}
	machine := vm.New(vm.WithLogger(vmlog.Stderr(logLevel)))
	if debug {
		machine.Inspector = vm.NewInspector(os.Stdin, os.Stdout)
	}

	if nativesDir != "" {
		if err := natives.LoadAll(nativesDir, machine.Globals); err != nil {
			fmt.Fprintf(os.Stderr, "septvm: %s: loading native modules: %v\n", code.ENativeModuleError, err)
			os.Exit(1)
		}
	}

	result, err := machine.Run(mod)
	if err != nil {
		reportRunError(err)
		os.Exit(1)
	}
	if !result.IsNothing() {
		fmt.Println(result.String())
	}
}

func reportRunError(err error) {
	switch e := err.(type) {
	case *vm.UncaughtException:
		fmt.Fprintln(os.Stderr, "septvm: uncaught exception")
		for _, line := range e.Trace {
			fmt.Fprintln(os.Stderr, line)
		}
	case *vm.FatalError:
		fmt.Fprintf(os.Stderr, "septvm: %s\n", e.Error())
	default:
		fmt.Fprintf(os.Stderr, "septvm: %v\n", err)
	}
}

func loadModuleFile(path string) *code.Module {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "septvm: %s: %v\n", code.EFileNotFound, err)
		} else {
			fmt.Fprintf(os.Stderr, "septvm: %v\n", err)
		}
		os.Exit(1)
	}
	defer f.Close()

	mgr := heap.NewManager(heap.DefaultThreshold)
	mod, err := moduleformat.Decode(f, mgr)
	if err != nil {
		class := code.EMalformedModule
		if errors.Is(err, moduleformat.ErrTruncated) {
			class = code.EUnexpectedEOF
		}
		fmt.Fprintf(os.Stderr, "septvm: %s: decoding %s: %v\n", class, path, err)
		os.Exit(1)
	}
	return mod
}

func disasmCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "septvm disasm: no module file given")
		os.Exit(1)
	}
	mod := loadModuleFile(args[0])

	fmt.Printf("module %q\n", mod.Name)

	fmt.Println("\nconstants:")
	for i, c := range mod.Constants {
		fmt.Printf("  [%3d] %s\n", i, formatConstant(c))
	}

	fmt.Println("\nnames:")
	for i, n := range mod.Names {
		fmt.Printf("  [%3d] %s\n", i, n)
	}

	fmt.Println("\nroot:")
	disassembleBlock(mod.Root)

	for i, fn := range mod.Functions {
		fmt.Printf("\nfunction [%d] %q:\n", i, fn.Name)
		disassembleBlock(fn)
	}
}

func formatConstant(v value.Value) string {
	if v.IsNothing() {
		return "nothing"
	}
	return v.String()
}

func disassembleBlock(cb *code.CodeBlock) {
	if cb == nil {
		fmt.Println("  <none>")
		return
	}
	fmt.Printf("  params:")
	for _, p := range cb.Params {
		fmt.Printf(" %s%s", p.Name, paramFlagsSuffix(p))
	}
	fmt.Println()
	for ip, instr := range cb.Instructions {
		fmt.Printf("  %4d  %-14s", ip, instr.Op.String())
		switch instr.Op {
		case code.OpCall:
			shapeIdx, argc := code.UnpackCall(instr.Operand)
			fmt.Printf(" shape=%d argc=%d", shapeIdx, argc)
			if shapeIdx >= 0 && shapeIdx < len(cb.CallShapes) {
				fmt.Printf(" %v", cb.CallShapes[shapeIdx].Names)
			}
		case code.OpFetchProp, code.OpStoreProp, code.OpPushLocal, code.OpStoreLocal, code.OpCreateSlot:
			if int(instr.Operand) < len(cb.Module.Names) {
				fmt.Printf(" %q", cb.Module.Names[instr.Operand])
			} else {
				fmt.Printf(" %d", instr.Operand)
			}
		case code.OpPushConst:
			if int(instr.Operand) < len(cb.Module.Constants) {
				fmt.Printf(" %s", formatConstant(cb.Module.Constants[instr.Operand]))
			} else {
				fmt.Printf(" %d", instr.Operand)
			}
		default:
			if instr.Operand != 0 {
				fmt.Printf(" %d", instr.Operand)
			}
		}
		fmt.Println()
	}
}

func paramFlagsSuffix(p code.ParameterDescriptor) string {
	s := ""
	if p.Is(code.FlagLazy) {
		s += "*"
	}
	if p.Is(code.FlagRest) {
		s += "..."
	}
	if p.Is(code.FlagNamedOnly) {
		s += ":"
	}
	if p.Is(code.FlagHasDefault) {
		s += "?"
	}
	return s
}
