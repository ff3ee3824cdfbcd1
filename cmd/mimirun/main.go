// mimirun loads a MIMI container and executes it with the host-side cpu
// interpreter — the desktop stand-in for a target that would instead flash
// the image and jump to its entry point.
//
// Usage:
//
//	mimirun [-kernel-bytes N] [-user-bytes N] file.mimi
package main

import (
	"flag"
	"fmt"
	"os"

	"mimic/abi"
	"mimic/alloc"
	"mimic/cpu"
	"mimic/fsys"
	"mimic/loader"
	"mimic/mimi"
	"mimic/task"
)

func main() {
	kernelBytes := flag.Uint("kernel-bytes", 4096, "kernel pool size, in bytes")
	userBytes := flag.Uint("user-bytes", 65536, "user pool size, in bytes")
	maxTasks := flag.Int("max-tasks", 4, "task table capacity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: mimirun [-kernel-bytes N] [-user-bytes N] file.mimi\n")
		os.Exit(1)
	}
	path := flag.Arg(0)

	kernel := alloc.NewPool(uint32(*kernelBytes), 4)
	user := alloc.NewPool(uint32(*userBytes), 4)
	tasks := task.NewTable(*maxTasks)

	var fs fsys.OSFS
	tcb, err := loader.Load(fs, path, kernel, user, tasks, mimi.ArchCortexM0Plus, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimirun: %v\n", err)
		os.Exit(1)
	}

	ctx := &abi.Context{
		Task:    tcb,
		Tasks:   tasks,
		Kernel:  kernel,
		User:    user,
		FS:      fs,
		Handles: make(map[uint32]fsys.Handle),
	}
	c := cpu.New(user.Bytes(), tcb, abi.NewDispatcher(), ctx)

	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "mimirun: %v\n", err)
		os.Exit(1)
	}
	c.Sync(tcb)

	fmt.Printf("mimirun: %s exited with code %d\n", path, c.ExitCode)
	os.Exit(int(int32(c.ExitCode)))
}
