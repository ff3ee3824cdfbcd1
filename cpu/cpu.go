// Package cpu implements a host-side interpreter for the Thumb-1/Thumb-2
// instruction subset compiler/codegen emits (spec §4.G), letting mimirun and
// test code execute a loaded MIMI module without real Cortex-M0+ hardware.
// Its decode tables are deliberately kept as mirror images of
// compiler/codegen's encoder functions: each case below names the
// codegen.go function that produces the bit pattern it decodes, so the two
// can be checked against each other directly instead of against a
// disassembler. golang.org/x/arch/arm/armasm was considered for this and
// dropped — see DESIGN.md — its Decode hard-requires ModeARM and has no
// Thumb decode path at all.
package cpu

import (
	"encoding/binary"

	"mimic/abi"
	"mimic/mkerr"
	"mimic/task"
)

// Register file indices, matching the ARM/Thumb convention compiler/codegen
// already names in its own r0/r1/sp/lr/pc constants.
const (
	rSP = 13
	rLR = 14
	rPC = 15
)

// maxSteps bounds Run's fetch-execute loop: a correct program always exits
// via the SysExit SVC, so this only guards against a miscompiled or
// hand-assembled test fixture spinning forever.
const maxSteps = 1_000_000

// CPU interprets Thumb code in-place over a shared byte arena (normally
// alloc.Pool.Bytes() for the pool a task was loaded into), using absolute
// addresses exactly as the loader leaves them in task.TCB.
type CPU struct {
	Mem  []byte
	Regs [16]uint32

	// flagN/flagZ/flagC/flagV mirror APSR.{N,Z,C,V}. Only CMP (reg and
	// imm-#0) updates them here: codegen always emits a CMP immediately
	// before the BCC that reads its result (genBoolFromCond/genShortCircuit/
	// genTernary/loop conditions), so no other instruction in this subset
	// ever needs to leave flags behind for a later branch to consume.
	flagN, flagZ, flagC, flagV bool

	Dispatcher *abi.Dispatcher
	Ctx        *abi.Context

	Halted   bool
	ExitCode uint32

	steps int
}

// New builds a CPU over mem, seeded from tcb's entry point and stack
// pointer. Running it drives syscalls through disp using ctx, which must
// already reference tcb (abi handlers read ctx.Task directly).
func New(mem []byte, tcb *task.TCB, disp *abi.Dispatcher, ctx *abi.Context) *CPU {
	c := &CPU{Mem: mem, Dispatcher: disp, Ctx: ctx}
	c.Regs[rSP] = tcb.SP
	c.Regs[rPC] = tcb.Entry
	return c
}

// Sync copies the CPU's register file back into tcb, so a caller that wants
// to inspect or persist task state after Run returns can do so through the
// same TCB.Regs/SP fields the loader populated.
func (c *CPU) Sync(tcb *task.TCB) {
	tcb.Regs = c.Regs
	tcb.SP = c.Regs[rSP]
}

// Run steps until Halted (an exit syscall) or maxSteps is exceeded.
func (c *CPU) Run() error {
	for !c.Halted {
		if c.steps >= maxSteps {
			return mkerr.New(mkerr.KindBusy, "cpu: exceeded %d steps without exiting", maxSteps)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU) fetch16(addr uint32) (uint16, error) {
	if int(addr)+2 > len(c.Mem) {
		return 0, mkerr.New(mkerr.KindCorrupt, "cpu: fetch at %#x out of range", addr)
	}
	return binary.LittleEndian.Uint16(c.Mem[addr:]), nil
}

func (c *CPU) load32(addr uint32) (uint32, error) {
	if int(addr)+4 > len(c.Mem) {
		return 0, mkerr.New(mkerr.KindCorrupt, "cpu: load32 at %#x out of range", addr)
	}
	return binary.LittleEndian.Uint32(c.Mem[addr:]), nil
}

func (c *CPU) store32(addr, v uint32) error {
	if int(addr)+4 > len(c.Mem) {
		return mkerr.New(mkerr.KindCorrupt, "cpu: store32 at %#x out of range", addr)
	}
	binary.LittleEndian.PutUint32(c.Mem[addr:], v)
	return nil
}

func (c *CPU) load8(addr uint32) (uint8, error) {
	if int(addr)+1 > len(c.Mem) {
		return 0, mkerr.New(mkerr.KindCorrupt, "cpu: load8 at %#x out of range", addr)
	}
	return c.Mem[addr], nil
}

func (c *CPU) store8(addr uint32, v uint8) error {
	if int(addr)+1 > len(c.Mem) {
		return mkerr.New(mkerr.KindCorrupt, "cpu: store8 at %#x out of range", addr)
	}
	c.Mem[addr] = v
	return nil
}

// Step fetches and executes exactly one instruction (two half-words for a
// 32-bit BL), advancing Regs[rPC] unless the instruction itself branches.
func (c *CPU) Step() error {
	c.steps++
	pc := c.Regs[rPC]
	hw, err := c.fetch16(pc)
	if err != nil {
		return err
	}

	// pcRel is the value instructions see when they read PC: the address
	// of the current instruction plus 4, matching EncodeThumbBL/
	// patchBranch/emitLiteralPool's own "instrOffset+4" convention exactly.
	pcRel := pc + 4

	// 32-bit BL (compiler/codegen.emitCallTo): hi half 0xF800==0xF000, lo
	// half 0xD000==0xD000, two-halfword Thumb-2 form decoded the same way
	// loader.EncodeThumbBL packs it.
	if hw&0xF800 == 0xF000 {
		lo, err := c.fetch16(pc + 2)
		if err != nil {
			return err
		}
		if lo&0xD000 != 0xD000 {
			return mkerr.New(mkerr.KindCorrupt, "cpu: bad BL low half-word %#04x at %#x", lo, pc+2)
		}
		c.Regs[rPC] = pc + 4
		c.execBL(pcRel, hw, lo)
		return nil
	}

	c.Regs[rPC] = pc + 2

	switch {
	case hw&0xFF00 == 0xDF00: // svc() — SVC #0
		return c.execSVC()

	case hw&0xFE00 == 0xB400: // pushReg — PUSH {registers[, lr]}
		return c.execPush(hw)
	case hw&0xFE00 == 0xBC00: // popReg — POP {registers[, pc]}
		return c.execPop(hw)

	case hw&0xFF80 == 0xB080: // immSPSub — SUB sp,#imm7*4
		imm := uint32(hw&0x7F) * 4
		c.Regs[rSP] -= imm
	case hw&0xFF80 == 0xB000: // immSPAdd — ADD sp,#imm7*4
		imm := uint32(hw&0x7F) * 4
		c.Regs[rSP] += imm

	case hw&0xF800 == 0x9000: // emitStoreSlot — STR rN,[sp,#imm8*4]
		rt := int((hw >> 8) & 0x7)
		imm := uint32(hw&0xFF) * 4
		return c.store32(c.Regs[rSP]+imm, c.Regs[rt])
	case hw&0xF800 == 0x9800: // emitLoadSlot — LDR rN,[sp,#imm8*4]
		rt := int((hw >> 8) & 0x7)
		imm := uint32(hw&0xFF) * 4
		v, err := c.load32(c.Regs[rSP] + imm)
		if err != nil {
			return err
		}
		c.Regs[rt] = v
	case hw&0xF800 == 0xA800: // emitAddrOfSlot — ADD rN, sp, #imm8*4
		rd := int((hw >> 8) & 0x7)
		imm := uint32(hw&0xFF) * 4
		c.Regs[rd] = c.Regs[rSP] + imm

	case hw&0xF800 == 0x4800: // ldrPCRel — LDR rd,[pc,#imm8*4]
		rd := int((hw >> 8) & 0x7)
		imm := uint32(hw&0xFF) * 4
		base := pcRel &^ 3
		v, err := c.load32(base + imm)
		if err != nil {
			return err
		}
		c.Regs[rd] = v

	case hw&0xF800 == 0x2000: // movImm — MOVS rd,#imm8
		rd := int((hw >> 8) & 0x7)
		c.Regs[rd] = uint32(hw & 0xFF)
	case hw&0xF800 == 0x3000: // addImm — ADDS rd,#imm8
		rd := int((hw >> 8) & 0x7)
		c.Regs[rd] += uint32(hw & 0xFF)
	case hw&0xF800 == 0x3800: // subImm1 — SUBS rd,#imm8
		rd := int((hw >> 8) & 0x7)
		c.Regs[rd] -= uint32(hw & 0xFF)
	case hw&0xF800 == 0x2800: // cmpImm0 — CMP rn,#imm8 (codegen only emits #0)
		rn := int((hw >> 8) & 0x7)
		c.setFlagsSub(c.Regs[rn], uint32(hw&0xFF))

	case hw&0xF800 == 0x6800: // ldrImm0 family — LDR rt,[rn,#imm5*4]
		rt, rn := int(hw&0x7), int((hw>>3)&0x7)
		imm := uint32((hw>>6)&0x1F) * 4
		v, err := c.load32(c.Regs[rn] + imm)
		if err != nil {
			return err
		}
		c.Regs[rt] = v
	case hw&0xF800 == 0x6000: // strImm0 family — STR rt,[rn,#imm5*4]
		rt, rn := int(hw&0x7), int((hw>>3)&0x7)
		imm := uint32((hw>>6)&0x1F) * 4
		return c.store32(c.Regs[rn]+imm, c.Regs[rt])
	case hw&0xF800 == 0x7800: // ldrbImm0 family — LDRB rt,[rn,#imm5]
		rt, rn := int(hw&0x7), int((hw>>3)&0x7)
		imm := uint32((hw >> 6) & 0x1F)
		v, err := c.load8(c.Regs[rn] + imm)
		if err != nil {
			return err
		}
		c.Regs[rt] = uint32(v)
	case hw&0xF800 == 0x7000: // strbImm0 family — STRB rt,[rn,#imm5]
		rt, rn := int(hw&0x7), int((hw>>3)&0x7)
		imm := uint32((hw >> 6) & 0x1F)
		return c.store8(c.Regs[rn]+imm, uint8(c.Regs[rt]))

	case hw&0xFE00 == 0x1800: // addRegs — ADDS rd,rn,rm
		rd, rn, rm := int(hw&0x7), int((hw>>3)&0x7), int((hw>>6)&0x7)
		c.Regs[rd] = c.Regs[rn] + c.Regs[rm]
	case hw&0xFE00 == 0x1A00: // subRegs — SUBS rd,rn,rm
		rd, rn, rm := int(hw&0x7), int((hw>>3)&0x7), int((hw>>6)&0x7)
		c.Regs[rd] = c.Regs[rn] - c.Regs[rm]

	case hw&0xFFC0 == 0x0000: // movReg — LSLS rd,rm,#0 (plain register move)
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] = c.Regs[rm]
	case hw&0xFFC0 == 0x4000: // andReg — ANDS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] &= c.Regs[rm]
	case hw&0xFFC0 == 0x4040: // eorReg — EORS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] ^= c.Regs[rm]
	case hw&0xFFC0 == 0x4080: // lslReg — LSLS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] <<= c.Regs[rm] & 0xFF
	case hw&0xFFC0 == 0x40C0: // lsrReg — LSRS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] >>= c.Regs[rm] & 0xFF
	case hw&0xFFC0 == 0x4240: // negReg — RSBS rd,rm,#0
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] = -c.Regs[rm]
	case hw&0xFFC0 == 0x4280: // cmpReg — CMP rn,rm
		rn, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.setFlagsSub(c.Regs[rn], c.Regs[rm])
	case hw&0xFFC0 == 0x4300: // orrReg — ORRS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] |= c.Regs[rm]
	case hw&0xFFC0 == 0x4340: // mulReg — MULS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] *= c.Regs[rm]
	case hw&0xFFC0 == 0x43C0: // mvnReg — MVNS rd,rm
		rd, rm := int(hw&0x7), int((hw>>3)&0x7)
		c.Regs[rd] = ^c.Regs[rm]

	case hw&0xF800 == 0xE000: // unconditional B (emitBranch/patchBranch, condAL)
		c.Regs[rPC] = pcRel + uint32(signExtend(uint32(hw&0x7FF), 11))<<1

	case hw == 0x46C0: // emitLiteralPool's alignment NOP (mov r8,r8)
		// no-op

	case hw&0xF000 == 0xD000: // Bcc (emitBranch/patchBranch, cond != condAL)
		cond := uint8((hw >> 8) & 0xF)
		if cond >= 0xE {
			return mkerr.New(mkerr.KindCorrupt, "cpu: unsupported conditional-branch cond %#x at %#x", cond, pc)
		}
		if c.conditionHolds(cond) {
			imm8 := uint32(hw & 0xFF)
			c.Regs[rPC] = pcRel + uint32(signExtend(imm8, 8))<<1
		}

	default:
		return mkerr.New(mkerr.KindNosys, "cpu: unrecognized instruction %#04x at %#x", hw, pc)
	}
	return nil
}

func (c *CPU) execPush(hw uint16) error {
	sp := c.Regs[rSP]
	saveLR := hw&0x0100 != 0
	n := 0
	for r := 0; r <= 7; r++ {
		if hw&(1<<uint(r)) != 0 {
			n++
		}
	}
	if saveLR {
		n++
	}
	sp -= uint32(n) * 4
	addr := sp
	for r := 0; r <= 7; r++ {
		if hw&(1<<uint(r)) != 0 {
			if err := c.store32(addr, c.Regs[r]); err != nil {
				return err
			}
			addr += 4
		}
	}
	if saveLR {
		if err := c.store32(addr, c.Regs[rLR]); err != nil {
			return err
		}
	}
	c.Regs[rSP] = sp
	return nil
}

func (c *CPU) execPop(hw uint16) error {
	addr := c.Regs[rSP]
	loadPC := hw&0x0100 != 0
	for r := 0; r <= 7; r++ {
		if hw&(1<<uint(r)) != 0 {
			v, err := c.load32(addr)
			if err != nil {
				return err
			}
			c.Regs[r] = v
			addr += 4
		}
	}
	if loadPC {
		v, err := c.load32(addr)
		if err != nil {
			return err
		}
		c.Regs[rPC] = v
		addr += 4
	}
	c.Regs[rSP] = addr
	return nil
}

// execBL executes a 32-bit BL given its two already-decoded half-words,
// inverting loader.EncodeThumbBL's J1/J2 packing.
func (c *CPU) execBL(pcRel uint32, hi, lo uint16) {
	s := uint32(hi>>10) & 1
	imm10 := uint32(hi & 0x3FF)
	j1 := uint32(lo>>13) & 1
	j2 := uint32(lo>>11) & 1
	imm11 := uint32(lo & 0x7FF)

	i1 := (^(j1 ^ s)) & 1
	i2 := (^(j2 ^ s)) & 1

	off := (s << 23) | (i1 << 22) | (i2 << 21) | (imm10 << 11) | imm11
	offset := signExtend(off, 24) << 1 // EncodeThumbBL halved the offset before packing it

	c.Regs[rLR] = c.Regs[rPC] // return address: already advanced past the BL
	c.Regs[rPC] = uint32(int32(pcRel) + offset)
}

func (c *CPU) execSVC() error {
	num := c.Regs[7]
	var args [4]uint32
	copy(args[:], c.Regs[0:4])
	ret, err := c.Dispatcher.Call(num, args, c.Ctx)
	if err != nil {
		return mkerr.Wrap(mkerr.KindNosys, err, "cpu: svc %d", num)
	}
	if num == abi.SysExit {
		// exit never returns to the program, so r0 keeps the exit code.
		c.Halted = true
		c.ExitCode = args[0]
		return nil
	}
	c.Regs[0] = ret
	return nil
}

// setFlagsSub computes CMP a,b's NZCV as ARM defines it for a-b: C set when
// no borrow occurs (a>=b unsigned), V set on signed overflow.
func (c *CPU) setFlagsSub(a, b uint32) {
	result := a - b
	c.flagZ = result == 0
	c.flagN = result&0x80000000 != 0
	c.flagC = a >= b
	c.flagV = (a^b)&(a^result)&0x80000000 != 0
}

// conditionHolds evaluates the standard ARM condition-code table against
// the flags setFlagsSub last recorded. codegen.condFor only ever produces
// EQ/NE/GE/LT/GT/LE, but the full table costs nothing extra to carry.
func (c *CPU) conditionHolds(cond uint8) bool {
	switch cond {
	case 0x0: // EQ
		return c.flagZ
	case 0x1: // NE
		return !c.flagZ
	case 0x2: // CS/HS
		return c.flagC
	case 0x3: // CC/LO
		return !c.flagC
	case 0x4: // MI
		return c.flagN
	case 0x5: // PL
		return !c.flagN
	case 0x6: // VS
		return c.flagV
	case 0x7: // VC
		return !c.flagV
	case 0x8: // HI
		return c.flagC && !c.flagZ
	case 0x9: // LS
		return !c.flagC || c.flagZ
	case 0xA: // GE
		return c.flagN == c.flagV
	case 0xB: // LT
		return c.flagN != c.flagV
	case 0xC: // GT
		return !c.flagZ && c.flagN == c.flagV
	case 0xD: // LE
		return c.flagZ || c.flagN != c.flagV
	default:
		return false
	}
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
