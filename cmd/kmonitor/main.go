// Command kmonitor is a host-side REPL standing in for the serial console
// and panic reporter, both out of scope for the kernel itself. It drives
// internal/kheap and internal/sched over a simulated memory arena. It is a
// harness for exercising the kernel packages from a real OS, not a kernel
// component, so it is the one place in this module allowed to recover() a
// kernel Fault and keep going.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-tty"

	"github.com/nagayev/kcore/internal/config"
	"github.com/nagayev/kcore/internal/kerrors"
	"github.com/nagayev/kcore/internal/kheap"
	"github.com/nagayev/kcore/internal/task"
)

// demoTaskCount is the number of tasks kmonitor pre-registers for `tick`
// and `tasks` to drive, since this scheduler has no task-creation
// operation of its own (tasks belong to the out-of-scope task subsystem).
const demoTaskCount = 2

// schedArenaSize sizes the byte arena backing simulated task stacks. The
// arena starts at the heap's limit, so the two address ranges never overlap.
const schedArenaSize = 0x20000

func main() {
	configPath := flag.String("config", "", "boot manifest YAML (default: built-in defaults)")
	transcriptPath := flag.String("log", "kmonitor.log", "session transcript path")
	flag.Parse()

	boot := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kmonitor: %v\n", err)
			os.Exit(1)
		}
		boot, err = config.Parse(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kmonitor: %v\n", err)
			os.Exit(1)
		}
	}

	out := colorable.NewColorableStdout()
	mon := newMonitor(boot, *transcriptPath, out)
	mon.reset()

	mon.runREPL()
}

type monitor struct {
	boot   config.Boot
	out    io.Writer
	heap   *kheap.Heap
	sched  *scheduler
	lock   *flock.Flock
	logPth string
}

func newMonitor(boot config.Boot, transcriptPath string, out io.Writer) *monitor {
	return &monitor{
		boot:   boot,
		out:    out,
		lock:   flock.New(transcriptPath + ".lock"),
		logPth: transcriptPath,
	}
}

// reset (re)builds the heap and scheduler from m.boot, discarding any
// prior allocator/task state. Used at startup and by the `config` command.
func (m *monitor) reset() {
	m.heap = kheap.New(m.boot.HeapBase, m.boot.HeapSize, m.boot.MaxEntries)
	m.heap.Init()
	m.sched = newScheduler(m.boot)
}

func (m *monitor) runREPL() {
	fmt.Fprintf(m.out, "kmonitor: heap %s capacity, %d tasks, quota %d ticks\n",
		bytesize.New(float64(m.boot.HeapSize)), demoTaskCount, m.boot.TaskQuota)
	fmt.Fprintln(m.out, "commands: alloc <n> | free <addr> | dump | tick [tid] | tasks | config <path> | quit")

	lines := m.lineSource()
	for {
		fmt.Fprint(m.out, "> ")
		line, ok := lines()
		if !ok {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m.appendTranscript("> " + line)

		if m.dispatch(line) {
			return
		}
	}
}

// lineSource returns a function yielding successive input lines, reading
// raw from a real TTY when one is attached and falling back to a plain
// line-buffered scanner over stdin otherwise (piped input, CI).
func (m *monitor) lineSource() func() (string, bool) {
	t, err := tty.Open()
	if err != nil {
		scanner := bufio.NewScanner(os.Stdin)
		return func() (string, bool) {
			if !scanner.Scan() {
				return "", false
			}
			return scanner.Text(), true
		}
	}

	return func() (string, bool) {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(m.out, "kmonitor: tty read failed: %v\n", r)
			}
		}()
		var sb strings.Builder
		for {
			r, err := t.ReadRune()
			if err != nil {
				t.Close()
				return sb.String(), sb.Len() > 0
			}
			switch r {
			case '\r', '\n':
				fmt.Fprintln(m.out)
				return sb.String(), true
			case 0x7f, '\b':
				if sb.Len() > 0 {
					s := sb.String()
					sb.Reset()
					sb.WriteString(s[:len(s)-1])
					fmt.Fprint(m.out, "\b \b")
				}
			default:
				sb.WriteRune(r)
				fmt.Fprint(m.out, string(r))
			}
		}
	}
}

// dispatch runs one command line, recovering a *kerrors.Fault so a single
// bad command (e.g. a double free) reports and the session continues. It
// returns true when the REPL should exit.
func (m *monitor) dispatch(line string) (quit bool) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			if f, ok := r.(*kerrors.Fault); ok {
				msg = f.Error()
			}
			fmt.Fprintf(m.out, "fault: %s\n", msg)
			m.appendTranscript("fault: " + msg)
		}
	}()

	fields, err := shlex.Split(line)
	if err != nil || len(fields) == 0 {
		fmt.Fprintf(m.out, "kmonitor: cannot parse %q\n", line)
		return false
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "alloc":
		m.cmdAlloc(args)
	case "free":
		m.cmdFree(args)
	case "dump":
		m.cmdDump()
	case "tick":
		m.cmdTick(args)
	case "tasks":
		m.cmdTasks()
	case "config":
		m.cmdConfig(args)
	case "quit":
		return true
	default:
		fmt.Fprintf(m.out, "kmonitor: unknown command %q\n", cmd)
	}
	return false
}

func (m *monitor) cmdAlloc(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(m.out, "usage: alloc <n>")
		return
	}
	n, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Fprintf(m.out, "alloc: %v\n", err)
		return
	}
	addr := m.heap.Alloc(uintptr(n))
	line := fmt.Sprintf("alloc %d -> %#x", n, addr)
	fmt.Fprintln(m.out, line)
	m.appendTranscript(line)
}

func (m *monitor) cmdFree(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(m.out, "usage: free <addr>")
		return
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Fprintf(m.out, "free: %v\n", err)
		return
	}
	m.heap.Free(uintptr(addr))
	line := fmt.Sprintf("free %#x ok", addr)
	fmt.Fprintln(m.out, line)
	m.appendTranscript(line)
}

func (m *monitor) cmdDump() {
	free, total := m.heap.FreeBytes(), m.boot.HeapSize
	fmt.Fprintf(m.out, "heap: %s free of %s\n", bytesize.New(float64(free)), bytesize.New(float64(total)))
	for _, e := range m.heap.Snapshot() {
		state := "free"
		if e.Busy {
			state = "busy"
		}
		fmt.Fprintf(m.out, "  %#x +%#x %s\n", e.Addr, e.Size, state)
	}
}

func (m *monitor) cmdTick(args []string) {
	label := ""
	if len(args) == 1 {
		label = args[0]
	}
	switched := m.sched.tick()
	line := fmt.Sprintf("tick%s -> tid=%d switched=%v", tickSuffix(label), m.sched.s.CurrentTID(), switched)
	fmt.Fprintln(m.out, line)
	m.appendTranscript(line)
}

func tickSuffix(label string) string {
	if label == "" {
		return ""
	}
	return " " + label
}

func (m *monitor) cmdTasks() {
	for i := 0; i < demoTaskCount; i++ {
		t := m.sched.table.Get(task.TID(i))
		current := ""
		if m.sched.s.CurrentTID() == task.TID(i) {
			current = " (current)"
		}
		fmt.Fprintf(m.out, "  t%d eip=%#x esp=%#x time=%d%s\n", i, t.OpRegisters.EIP, t.OpRegisters.ESP, t.Time, current)
	}
}

func (m *monitor) cmdConfig(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(m.out, "usage: config <path>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(m.out, "config: %v\n", err)
		return
	}
	boot, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(m.out, "config: %v\n", err)
		return
	}
	m.boot = boot
	m.reset()
	fmt.Fprintf(m.out, "config: reloaded from %s, heap and tasks reset\n", args[0])
}

// appendTranscript records one transcript line under a file lock, so two
// kmonitor instances pointed at the same log can't interleave writes.
func (m *monitor) appendTranscript(line string) {
	if err := m.lock.Lock(); err != nil {
		return
	}
	defer m.lock.Unlock()

	f, err := os.OpenFile(m.logPth, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
