package wasm

import "bytes"

// Code emits an instruction sequence for a function body.
// Methods return the receiver so sequences can be chained.
type Code struct {
	buf   bytes.Buffer
	depth int
	done  bool
}

// NewCode creates an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf.Bytes()
}

// Depth returns the number of open blocks.
func (c *Code) Depth() int {
	return c.depth
}

func (c *Code) terminated() bool {
	return c.done
}

// Op emits an instruction without immediates.
func (c *Code) Op(op byte) *Code {
	c.buf.WriteByte(op)
	return c
}

func (c *Code) opIdx(op byte, idx uint32) *Code {
	c.buf.WriteByte(op)
	WriteLEB128u(&c.buf, idx)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code  { return c.opIdx(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code  { return c.opIdx(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code  { return c.opIdx(OpLocalTee, idx) }
func (c *Code) GlobalGet(idx uint32) *Code { return c.opIdx(OpGlobalGet, idx) }
func (c *Code) GlobalSet(idx uint32) *Code { return c.opIdx(OpGlobalSet, idx) }
func (c *Code) Call(fn uint32) *Code       { return c.opIdx(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code      { return c.opIdx(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code    { return c.opIdx(OpBrIf, depth) }

// I32Const emits i32.const.
func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(OpI32Const)
	WriteLEB128s(&c.buf, v)
	return c
}

func (c *Code) memOp(op byte, alignLog2, offset uint32) *Code {
	c.buf.WriteByte(op)
	WriteLEB128u(&c.buf, alignLog2)
	WriteLEB128u(&c.buf, offset)
	return c
}

// I32Load emits i32.load with natural alignment.
func (c *Code) I32Load(offset uint32) *Code { return c.memOp(OpI32Load, 2, offset) }

// I32Load8U emits i32.load8_u.
func (c *Code) I32Load8U(offset uint32) *Code { return c.memOp(OpI32Load8U, 0, offset) }

// I32Store emits i32.store with natural alignment.
func (c *Code) I32Store(offset uint32) *Code { return c.memOp(OpI32Store, 2, offset) }

// MemorySize emits memory.size for memory 0.
func (c *Code) MemorySize() *Code {
	c.buf.WriteByte(OpMemorySize)
	c.buf.WriteByte(0x00)
	return c
}

// MemoryGrow emits memory.grow for memory 0.
func (c *Code) MemoryGrow() *Code {
	c.buf.WriteByte(OpMemoryGrow)
	c.buf.WriteByte(0x00)
	return c
}

// MemoryCopy emits memory.copy within memory 0. Operands: dst, src, len.
func (c *Code) MemoryCopy() *Code {
	c.buf.WriteByte(OpPrefixMisc)
	WriteLEB128u(&c.buf, OpMiscMemoryCopy)
	c.buf.WriteByte(0x00)
	c.buf.WriteByte(0x00)
	return c
}

func (c *Code) open(op, blockType byte) *Code {
	c.buf.WriteByte(op)
	c.buf.WriteByte(blockType)
	c.depth++
	return c
}

// Block opens a block with the given block type.
func (c *Code) Block(blockType byte) *Code { return c.open(OpBlock, blockType) }

// Loop opens a loop with the given block type.
func (c *Code) Loop(blockType byte) *Code { return c.open(OpLoop, blockType) }

// If opens an if with the given block type.
func (c *Code) If(blockType byte) *Code { return c.open(OpIf, blockType) }

// Else switches to the else arm of the innermost if.
func (c *Code) Else() *Code { return c.Op(OpElse) }

// End closes the innermost block. At depth zero it terminates the body.
func (c *Code) End() *Code {
	c.buf.WriteByte(OpEnd)
	if c.depth == 0 {
		c.done = true
		return c
	}
	c.depth--
	return c
}

// Return emits return.
func (c *Code) Return() *Code { return c.Op(OpReturn) }

// ReturnI32If returns v from the function when the i32 on top of the stack
// is non-zero.
func (c *Code) ReturnI32If(v int32) *Code {
	return c.If(BlockVoid).I32Const(v).Return().End()
}
