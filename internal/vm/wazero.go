package vm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// WazeroMachine runs guest bytecode as a compiled WebAssembly module inside
// a sandboxed wazero runtime, giving the toy kernel a real embeddable guest
// VM the way a production build would run mruby/JS/Lua bytecode. The guest
// module must export a nullary `step` function returning i32 (negative
// means terminate, matching task.VM.Run's contract) and may import
// `coresched.should_yield` to poll the preemption flag at its own safe
// points, the same protocol a native interpreter would implement around
// task.VM.RaisePreemption.
type WazeroMachine struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
	stepFn  api.Function
	preempt atomic.Bool
}

// Open compiles and instantiates bytecode (a wasm binary) under ctx. The
// returned machine owns its own wazero runtime; Close tears it down.
func Open(ctx context.Context, bytecode []byte) (*WazeroMachine, error) {
	rt := wazero.NewRuntime(ctx)
	m := &WazeroMachine{ctx: ctx, runtime: rt}

	_, err := rt.NewHostModuleBuilder("coresched").
		NewFunctionBuilder().
		WithFunc(func(context.Context) int32 {
			if m.preempt.Load() {
				return 1
			}
			return 0
		}).
		Export("should_yield").
		Instantiate(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("vm: instantiate host module: %w", err)
	}

	mod, err := rt.Instantiate(ctx, bytecode)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("vm: instantiate guest module: %w", err)
	}

	stepFn := mod.ExportedFunction("step")
	if stepFn == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("vm: guest module does not export a step function")
	}

	m.module = mod
	m.stepFn = stepFn
	return m, nil
}

// Run calls the guest's exported step function once.
func (m *WazeroMachine) Run() int {
	results, err := m.stepFn.Call(m.ctx)
	if err != nil || len(results) == 0 {
		// A trapping guest is treated as natural termination (spec §7):
		// the scheduler doesn't distinguish "crashed" from "returned",
		// both just move the task to DORMANT.
		return -1
	}
	return int(int32(results[0]))
}

func (m *WazeroMachine) RaisePreemption() {
	m.preempt.Store(true)
}

func (m *WazeroMachine) ClearPreemption() {
	m.preempt.Store(false)
}

func (m *WazeroMachine) Close() error {
	return m.runtime.Close(m.ctx)
}
