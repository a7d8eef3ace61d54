// Package moduleformat implements September's binary module-file codec:
// encode/decode of a pkg/code.Module to and from the wire format described
// by spec.md §6.1.
//
// Grounded on the teacher's pkg/bytecode/format.go `.sg` codec: the same
// binary.Write/binary.Read-with-LittleEndian, magic-number-plus-version
// header, length-prefixed-section layout is kept; the constant-pool tag set
// is replaced with September's own (Integer/Boolean/Nothing/String plus two
// tags the teacher's format didn't need: a Function back-reference and a
// shared ParameterDescriptor-shape table, see below).
package moduleformat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

var (
	magic       = [4]byte{'S', 'P', 'V', 'M'}
	footerMagic = [4]byte{'E', 'N', 'D', '!'}
)

const formatVersion uint16 = 1

// Constant pool tags. 0x00-0x03 are ordinary literal kinds; 0xFE is the one
// addition beyond the teacher's format: a Function back-reference (for a
// top-level function bound to the module's own Scope, referenced as an
// ordinary constant). Parameter shapes are not a constant tag: they live in
// a separate shared table section that each CodeBlock's Params refer to by
// index.
const (
	tagInteger     byte = 0x00
	tagBoolean     byte = 0x01
	tagNothing     byte = 0x02
	tagString      byte = 0x03
	tagFunctionRef byte = 0xFE
)

// ErrMalformed reports a structurally invalid module file: bad magic,
// unsupported version, an unknown tag byte, an out-of-range index, or a
// missing end marker. cmd/septvm's loader reports a decode error under the
// EMalformedModuleFile class name unless it Is ErrTruncated.
var ErrMalformed = errors.New("moduleformat: malformed module file")

// ErrTruncated reports a module file that ended in the middle of a
// section. cmd/septvm's loader reports it under the EUnexpectedEOF class
// name.
var ErrTruncated = errors.New("moduleformat: unexpected end of file")

func wrapReadErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// Encode writes mod to w in September's module-file binary format.
func Encode(w io.Writer, mod *code.Module) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := writeString(bw, mod.Name); err != nil {
		return err
	}

	if err := writeUint32(bw, uint32(len(mod.Names))); err != nil {
		return err
	}
	for _, n := range mod.Names {
		if err := writeString(bw, n); err != nil {
			return err
		}
	}

	shapes, shapeIndex := collectParamShapes(mod)
	if err := writeUint32(bw, uint32(len(shapes))); err != nil {
		return err
	}
	for _, shape := range shapes {
		if err := writeParams(bw, shape); err != nil {
			return err
		}
	}

	if err := writeUint32(bw, uint32(len(mod.Constants))); err != nil {
		return err
	}
	for _, c := range mod.Constants {
		if err := writeConstant(bw, c, mod); err != nil {
			return err
		}
	}

	if err := writeCodeBlock(bw, mod.Root, shapeIndex); err != nil {
		return err
	}

	if err := writeUint32(bw, uint32(len(mod.Functions))); err != nil {
		return err
	}
	for _, fn := range mod.Functions {
		if err := writeCodeBlock(bw, fn, shapeIndex); err != nil {
			return err
		}
	}

	if _, err := bw.Write(footerMagic[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// Decode reads a Module from r, registering every CodeBlock it allocates
// with mgr. String constants are allocated as heap.String values on mgr.
// A decoded constant tagged tagFunctionRef decodes as a placeholder
// (value.Nothing) plus an entry in the returned Module's
// PendingFunctionRefs — the VM fills these in once the module's Scope
// exists (see pkg/vm.VM.LoadModule), since a Function Value needs a
// captured Scope that does not exist yet at decode time.
func Decode(r io.Reader, mgr *heap.Manager) (*code.Module, error) {
	br := bufio.NewReader(r)

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, wrapReadErr(err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic number", ErrMalformed)
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, wrapReadErr(err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}

	name, err := readString(br)
	if err != nil {
		return nil, err
	}
	mod := code.NewModule(name)

	nameCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nameCount; i++ {
		n, err := readString(br)
		if err != nil {
			return nil, err
		}
		mod.Names = append(mod.Names, n)
	}

	shapeCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	shapes := make([][]code.ParameterDescriptor, shapeCount)
	for i := range shapes {
		params, err := readParams(br)
		if err != nil {
			return nil, err
		}
		shapes[i] = params
	}

	constCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < constCount; i++ {
		v, pendingFuncIdx, err := readConstant(br, mgr)
		if err != nil {
			return nil, err
		}
		idx := mod.AddConstant(v)
		if pendingFuncIdx >= 0 {
			mod.PendingFunctionRefs = append(mod.PendingFunctionRefs, code.PendingFunctionRef{
				ConstIndex: idx,
				FuncIndex:  pendingFuncIdx,
			})
		}
	}

	root, err := readCodeBlock(br, mgr, shapes)
	if err != nil {
		return nil, err
	}
	root.Module = mod
	mod.Root = root

	fnCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < fnCount; i++ {
		cb, err := readCodeBlock(br, mgr, shapes)
		if err != nil {
			return nil, err
		}
		mod.AddFunction(cb)
	}

	var gotFooter [4]byte
	if _, err := io.ReadFull(br, gotFooter[:]); err != nil {
		return nil, wrapReadErr(err)
	}
	if gotFooter != footerMagic {
		return nil, fmt.Errorf("%w: missing end marker", ErrMalformed)
	}

	return mod, nil
}

func collectParamShapes(mod *code.Module) ([][]code.ParameterDescriptor, map[string]int) {
	index := make(map[string]int)
	var shapes [][]code.ParameterDescriptor
	add := func(params []code.ParameterDescriptor) {
		key := paramShapeKey(params)
		if _, ok := index[key]; ok {
			return
		}
		index[key] = len(shapes)
		shapes = append(shapes, params)
	}
	add(mod.Root.Params)
	for _, fn := range mod.Functions {
		add(fn.Params)
	}
	return shapes, index
}

func paramShapeKey(params []code.ParameterDescriptor) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, "%s|%d|%d;", p.Name, p.Flags, p.Default)
	}
	return b.String()
}

func writeCodeBlock(w io.Writer, cb *code.CodeBlock, shapeIndex map[string]int) error {
	if err := writeString(w, cb.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(cb.MaxStack)); err != nil {
		return err
	}
	idx, ok := shapeIndex[paramShapeKey(cb.Params)]
	if !ok {
		return fmt.Errorf("moduleformat: no param shape recorded for code block %q", cb.Name)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(idx)); err != nil {
		return err
	}

	if err := writeUint32(w, uint32(len(cb.CallShapes))); err != nil {
		return err
	}
	for _, shape := range cb.CallShapes {
		if err := writeUint32(w, uint32(len(shape.Names))); err != nil {
			return err
		}
		for _, n := range shape.Names {
			if err := writeString(w, n); err != nil {
				return err
			}
		}
	}

	if err := writeUint32(w, uint32(len(cb.Instructions))); err != nil {
		return err
	}
	for _, instr := range cb.Instructions {
		if err := writeByte(w, byte(instr.Op)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, instr.Operand); err != nil {
			return err
		}
	}
	return nil
}

func readCodeBlock(r io.Reader, mgr *heap.Manager, shapes [][]code.ParameterDescriptor) (*code.CodeBlock, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var maxStack int32
	if err := binary.Read(r, binary.LittleEndian, &maxStack); err != nil {
		return nil, wrapReadErr(err)
	}
	var shapeIdx int32
	if err := binary.Read(r, binary.LittleEndian, &shapeIdx); err != nil {
		return nil, wrapReadErr(err)
	}
	if shapeIdx < 0 || int(shapeIdx) >= len(shapes) {
		return nil, fmt.Errorf("%w: param shape index out of range", ErrMalformed)
	}

	cb := code.NewCodeBlock(mgr, name)
	cb.MaxStack = int(maxStack)
	cb.Params = shapes[shapeIdx]

	callShapeCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < callShapeCount; i++ {
		namesCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		names := make([]string, namesCount)
		for j := range names {
			n, err := readString(r)
			if err != nil {
				return nil, err
			}
			names[j] = n
		}
		cb.CallShapes = append(cb.CallShapes, code.CallShape{Names: names})
	}

	instrCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < instrCount; i++ {
		op, err := readByte(r)
		if err != nil {
			return nil, err
		}
		var operand int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, wrapReadErr(err)
		}
		cb.Instructions = append(cb.Instructions, code.Instruction{Op: code.Opcode(op), Operand: operand})
	}

	return cb, nil
}

func writeParams(w io.Writer, params []code.ParameterDescriptor) error {
	if err := writeUint32(w, uint32(len(params))); err != nil {
		return err
	}
	for _, p := range params {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		if err := writeByte(w, byte(p.Flags)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(p.Default)); err != nil {
			return err
		}
	}
	return nil
}

func readParams(r io.Reader) ([]code.ParameterDescriptor, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	params := make([]code.ParameterDescriptor, count)
	for i := range params {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		flags, err := readByte(r)
		if err != nil {
			return nil, err
		}
		var def int32
		if err := binary.Read(r, binary.LittleEndian, &def); err != nil {
			return nil, wrapReadErr(err)
		}
		params[i] = code.ParameterDescriptor{Name: name, Flags: code.ParamFlag(flags), Default: int(def)}
	}
	return params, nil
}

func writeConstant(w io.Writer, v value.Value, mod *code.Module) error {
	switch v.Kind() {
	case value.KindInteger:
		if err := writeByte(w, tagInteger); err != nil {
			return err
		}
		n, _ := v.Int()
		return binary.Write(w, binary.LittleEndian, n)

	case value.KindBoolean:
		if err := writeByte(w, tagBoolean); err != nil {
			return err
		}
		b, _ := v.Bool()
		var flag byte
		if b {
			flag = 1
		}
		return writeByte(w, flag)

	case value.KindNothing:
		return writeByte(w, tagNothing)

	case value.KindReference:
		h, _ := v.Heap()
		if s, ok := h.(*heap.String); ok {
			if err := writeByte(w, tagString); err != nil {
				return err
			}
			return writeString(w, s.Text)
		}
		if fn, ok := h.(*code.Function); ok {
			idx := -1
			for i, cb := range mod.Functions {
				if cb == fn.Code {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("moduleformat: constant Function is not one of the module's own function bodies")
			}
			if err := writeByte(w, tagFunctionRef); err != nil {
				return err
			}
			return binary.Write(w, binary.LittleEndian, int32(idx))
		}
		return fmt.Errorf("moduleformat: constant pool cannot hold a %s value", h.HeapKind())

	default:
		return fmt.Errorf("moduleformat: unsupported constant kind")
	}
}

// readConstant decodes one constant-pool entry. It returns a non-negative
// pendingFuncIdx only for a tagFunctionRef entry, in which case v is a
// Nothing placeholder the caller must remember to patch in once the owning
// Module has a Scope.
func readConstant(r io.Reader, mgr *heap.Manager) (v value.Value, pendingFuncIdx int, err error) {
	tag, err := readByte(r)
	if err != nil {
		return value.Nothing(), -1, err
	}
	switch tag {
	case tagInteger:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.Nothing(), -1, wrapReadErr(err)
		}
		return value.Int(n), -1, nil

	case tagBoolean:
		flag, err := readByte(r)
		if err != nil {
			return value.Nothing(), -1, err
		}
		return value.Bool(flag != 0), -1, nil

	case tagNothing:
		return value.Nothing(), -1, nil

	case tagString:
		s, err := readString(r)
		if err != nil {
			return value.Nothing(), -1, err
		}
		return value.Ref(heap.NewString(mgr, s)), -1, nil

	case tagFunctionRef:
		var idx int32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return value.Nothing(), -1, wrapReadErr(err)
		}
		return value.Nothing(), int(idx), nil

	default:
		return value.Nothing(), -1, fmt.Errorf("%w: unknown constant tag 0x%02x", ErrMalformed, tag)
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapReadErr(err)
	}
	return buf[0], nil
}

func writeUint32(w io.Writer, n uint32) error {
	return binary.Write(w, binary.LittleEndian, n)
}

func readUint32(r io.Reader) (uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, wrapReadErr(err)
	}
	return n, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", wrapReadErr(err)
	}
	return string(buf), nil
}
