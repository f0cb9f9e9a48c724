// Command coresched-demo is a host-side driver for the scheduler: it loads
// a board config, wires up a tick source and console, flashes bytecode
// images, and gives an operator an interactive REPL standing in for "the
// user-facing bindings that expose scheduler calls into guest code" (spec
// §6, out of scope for the kernel itself but still needing a driver here).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/shlex"
	"github.com/mattn/go-tty"

	"github.com/chikuwait/coresched/internal/bytecode"
	"github.com/chikuwait/coresched/internal/config"
	"github.com/chikuwait/coresched/internal/console"
	"github.com/chikuwait/coresched/internal/hal"
	"github.com/chikuwait/coresched/internal/sched"
	"github.com/chikuwait/coresched/internal/task"
	"github.com/chikuwait/coresched/internal/vm"
)

func main() {
	configPath := flag.String("config", "", "path to a board YAML config (defaults are used if empty)")
	lockPath := flag.String("lock", "/tmp/coresched-demo.lock", "advisory lock file path guarding the tick source")
	flag.Parse()

	if err := run(*configPath, *lockPath); err != nil {
		fmt.Fprintln(os.Stderr, "coresched-demo:", err)
		os.Exit(1)
	}
}

func run(configPath, lockPath string) error {
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire tick source lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another coresched-demo instance already holds %s", lockPath)
	}
	defer fl.Unlock()

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	con := console.NewStdConsole()

	var hw hal.HAL
	switch cfg.TickSource {
	case "serial":
		hw = hal.NewSerial(cfg.SerialPort, cfg.SerialBaud)
	default:
		hw = hal.NewHosted(cfg.TickHz)
	}
	if err := hw.Init(); err != nil {
		return fmt.Errorf("init tick source: %w", err)
	}

	k := sched.New(hw, con, cfg.TimesliceTicks)
	if err := hw.Start(k.TickHandler); err != nil {
		return fmt.Errorf("start tick source: %w", err)
	}
	defer hw.Stop()

	tcbs := make(map[string]*task.TCB)
	for _, spec := range cfg.Tasks {
		spec := spec
		tcb, err := k.CreateTask(nil, spec.Priority, func() (task.VM, error) {
			return loadWazeroTask(spec.BytecodeHex)
		})
		if err != nil {
			con.Warnf("skipping task %s: %v", spec.Name, err)
			continue
		}
		tcb.Name = spec.Name
		tcbs[spec.Name] = tcb
	}

	go replLoop(k, tcbs, con)

	k.Run()
	con.Printf("all tasks drained, exiting")
	return nil
}

func loadWazeroTask(hexPath string) (task.VM, error) {
	f, err := os.Open(hexPath)
	if err != nil {
		return nil, fmt.Errorf("open bytecode image: %w", err)
	}
	defer f.Close()

	data, err := bytecode.LoadHex(f)
	if err != nil {
		return nil, err
	}
	return vm.Open(context.Background(), data)
}

// replLoop reads keystrokes one at a time and acts on each line when Enter
// is pressed: a line of just "d" is the debug dump command, and any other
// line is a typed, shlex-tokenized command (sleep <task> <ms>, resume
// <task>, suspend <task>, priority <task> <p>).
func replLoop(k *sched.Kernel, tcbs map[string]*task.TCB, con console.Sink) {
	term, err := tty.Open()
	if err != nil {
		con.Warnf("repl disabled, no tty: %v", err)
		return
	}
	defer term.Close()

	var line []rune
	for {
		r, err := term.ReadRune()
		if err != nil {
			return
		}
		switch {
		case r == '\r' || r == '\n':
			if len(line) == 1 && line[0] == 'd' {
				k.Dump()
			} else if len(line) > 0 {
				dispatchCommand(k, tcbs, con, string(line))
			}
			line = line[:0]
		default:
			line = append(line, r)
		}
	}
}

// dispatchCommand handles shlex-tokenized lines of the form
// "<verb> <task> [arg]": resume T, suspend T, sleep T 120, priority T 50.
func dispatchCommand(k *sched.Kernel, tcbs map[string]*task.TCB, con console.Sink, line string) {
	args, err := shlex.Split(line)
	if err != nil || len(args) < 2 {
		con.Warnf("usage: <resume|suspend|sleep|priority> <task> [arg]: %s", line)
		return
	}
	verb, taskName := args[0], args[1]
	tcb, ok := tcbs[taskName]
	if !ok {
		con.Warnf("unknown task %q", taskName)
		return
	}

	switch verb {
	case "resume":
		k.Resume(tcb)
	case "suspend":
		k.Suspend(tcb)
	case "sleep":
		if len(args) < 3 {
			con.Warnf("usage: sleep <task> <ms>")
			return
		}
		var ms uint64
		if _, err := fmt.Sscanf(args[2], "%d", &ms); err != nil {
			con.Warnf("bad ms: %s", args[2])
			return
		}
		k.Sleep(tcb, ms)
	case "priority":
		if len(args) < 3 {
			con.Warnf("usage: priority <task> <p>")
			return
		}
		var p uint8
		if _, err := fmt.Sscanf(args[2], "%d", &p); err != nil {
			con.Warnf("bad priority: %s", args[2])
			return
		}
		k.ChangePriority(tcb, p)
	default:
		con.Warnf("unknown command %q", verb)
	}
}
