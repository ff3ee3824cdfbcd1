// Package abi defines the syscall numbers user tasks invoke via
// r7=number/r0-r3=args/r0=return (spec §6), translated from
// original_source/Test-01/syscall.h's SYS_* constants, and a Dispatcher
// that routes a call number to a handler against a Context.
package abi

// Syscall numbers, grouped exactly as syscall.h groups them.
const (
	SysExit  uint32 = 0
	SysYield uint32 = 1
	SysSleep uint32 = 2
	SysTime  uint32 = 3

	SysMalloc  uint32 = 10
	SysFree    uint32 = 11
	SysRealloc uint32 = 12

	SysOpen  uint32 = 20
	SysClose uint32 = 21
	SysRead  uint32 = 22
	SysWrite uint32 = 23
	SysSeek  uint32 = 24

	SysPutchar uint32 = 30
	SysGetchar uint32 = 31
	SysPuts    uint32 = 32

	SysGPIOInit uint32 = 40
	SysGPIODir  uint32 = 41
	SysGPIOPut  uint32 = 42
	SysGPIOGet  uint32 = 43
	SysGPIOPull uint32 = 44

	SysPWMInit     uint32 = 50
	SysPWMSetWrap  uint32 = 51
	SysPWMSetLevel uint32 = 52
	SysPWMEnable   uint32 = 53

	SysADCInit   uint32 = 60
	SysADCSelect uint32 = 61
	SysADCRead   uint32 = 62
	SysADCTemp   uint32 = 63

	SysSPIInit     uint32 = 70
	SysSPIWrite    uint32 = 71
	SysSPIRead     uint32 = 72
	SysSPITransfer uint32 = 73

	SysI2CInit  uint32 = 80
	SysI2CWrite uint32 = 81
	SysI2CRead  uint32 = 82
)

// Name returns the mnemonic for a syscall number, or "" if unrecognized —
// used by cmd/mimidump when disassembling SYSCALL symbols.
func Name(num uint32) string {
	if n, ok := names[num]; ok {
		return n
	}
	return ""
}

// Lookup returns the syscall number for a mnemonic, for the codegen's
// syscall-trampoline recognition (spec §4.G): a called name matching one of
// these is lowered as "MOV r7,#num; SVC #0" instead of a BL.
func Lookup(name string) (uint32, bool) {
	num, ok := byName[name]
	return num, ok
}

var byName = func() map[string]uint32 {
	m := make(map[string]uint32, len(names))
	for num, name := range names {
		m[name] = num
	}
	return m
}()

var names = map[uint32]string{
	SysExit: "exit", SysYield: "yield", SysSleep: "sleep", SysTime: "time",
	SysMalloc: "malloc", SysFree: "free", SysRealloc: "realloc",
	SysOpen: "open", SysClose: "close", SysRead: "read", SysWrite: "write", SysSeek: "seek",
	SysPutchar: "putchar", SysGetchar: "getchar", SysPuts: "puts",
	SysGPIOInit: "gpio_init", SysGPIODir: "gpio_dir", SysGPIOPut: "gpio_put",
	SysGPIOGet: "gpio_get", SysGPIOPull: "gpio_pull",
	SysPWMInit: "pwm_init", SysPWMSetWrap: "pwm_set_wrap",
	SysPWMSetLevel: "pwm_set_level", SysPWMEnable: "pwm_enable",
	SysADCInit: "adc_init", SysADCSelect: "adc_select", SysADCRead: "adc_read", SysADCTemp: "adc_temp",
	SysSPIInit: "spi_init", SysSPIWrite: "spi_write", SysSPIRead: "spi_read", SysSPITransfer: "spi_transfer",
	SysI2CInit: "i2c_init", SysI2CWrite: "i2c_write", SysI2CRead: "i2c_read",
}
