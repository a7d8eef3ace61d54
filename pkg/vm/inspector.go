package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/frame"
)

// breakpoint identifies one (CodeBlock, instruction pointer) pair to stop
// at, adapted from the teacher's Debugger breakpoint keying
// (pkg/vm/debugger.go) generalized from a line-in-source-text key (which
// no longer exists once the compiler is out of scope) to a CodeBlock+ip key.
type breakpoint struct {
	cb *code.CodeBlock
	ip int
}

// Inspector is a same-process, ad hoc inspection aid: breakpoints,
// single-step mode, and a stdin REPL for dumping stack/frame/handler
// state. It is not a stepping protocol (spec.md's Non-goals explicitly
// exclude that) — it is wired to `cmd/septvm run --debug` for interactive
// use only, adapted from the teacher's Debugger.
type Inspector struct {
	breakpoints []breakpoint
	stepping    bool
	in          *bufio.Scanner
	out         io.Writer
}

// NewInspector creates an Inspector reading commands from in and writing
// prompts/output to out. It starts in single-step mode, so the REPL
// prompts before the first instruction runs.
func NewInspector(in io.Reader, out io.Writer) *Inspector {
	return &Inspector{in: bufio.NewScanner(in), out: out, stepping: true}
}

func (ins *Inspector) AddBreakpoint(cb *code.CodeBlock, ip int) {
	ins.breakpoints = append(ins.breakpoints, breakpoint{cb: cb, ip: ip})
}

func (ins *Inspector) atBreakpoint(f *frame.Frame) bool {
	for _, b := range ins.breakpoints {
		if b.cb == f.Code && b.ip == f.IP {
			return true
		}
	}
	return false
}

// beforeInstruction is called by the main loop's safe point, before
// dispatching the next instruction in f. It blocks on the stdin REPL when
// stepping or a breakpoint is hit.
func (ins *Inspector) beforeInstruction(vm *VM, f *frame.Frame) error {
	if !ins.stepping && !ins.atBreakpoint(f) {
		return nil
	}
	return ins.repl(vm, f)
}

func (ins *Inspector) repl(vm *VM, f *frame.Frame) error {
	for {
		fmt.Fprintf(ins.out, "(septvm) %s @%d> ", f.Name(), f.IP)
		if !ins.in.Scan() {
			return nil
		}
		line := strings.TrimSpace(ins.in.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "step", "s":
			ins.stepping = true
			return nil
		case "continue", "c":
			ins.stepping = false
			return nil
		case "stack":
			ins.printStack(f)
		case "frames":
			ins.printFrames(vm)
		case "handlers":
			ins.printHandlers(f)
		case "break", "b":
			if len(fields) >= 2 {
				if ip, err := strconv.Atoi(fields[1]); err == nil {
					ins.AddBreakpoint(f.Code, ip)
					fmt.Fprintf(ins.out, "breakpoint set at %s:%d\n", f.Name(), ip)
				}
			}
		case "help", "?":
			fmt.Fprintln(ins.out, "commands: step|s, continue|c, stack, frames, handlers, break|b <ip>, quit|q")
		case "quit", "q":
			return &FatalError{Message: "inspector: user aborted execution"}
		default:
			fmt.Fprintf(ins.out, "unknown command: %s (try 'help')\n", fields[0])
		}
	}
}

func (ins *Inspector) printStack(f *frame.Frame) {
	fmt.Fprintf(ins.out, "operand stack (%d):\n", f.StackDepth())
	for i := 0; i < f.Operand.Len(); i++ {
		v, _ := f.Operand.Get(i)
		fmt.Fprintf(ins.out, "  [%d] %s\n", i, v)
	}
}

func (ins *Inspector) printFrames(vm *VM) {
	i := 0
	for fr := vm.frames; fr != nil; fr = fr.Parent {
		fmt.Fprintf(ins.out, "  #%d %s ip=%d\n", i, fr.Name(), fr.IP)
		i++
	}
}

func (ins *Inspector) printHandlers(f *frame.Frame) {
	fmt.Fprintf(ins.out, "handlers (%d):\n", len(f.Handlers))
	for i, h := range f.Handlers {
		fmt.Fprintf(ins.out, "  [%d] target=%d stackDepth=%d\n", i, h.TargetIP, h.StackDepth)
	}
}
