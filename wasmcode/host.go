package wasmcode

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/realm"
	"github.com/wippyai/realm-runtime/term"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostModule builds the realm import module:
//
//	self() -> i64                          own pid
//	send_int(pid i64, v i64) -> i32        0 sent, 1 failed
//	recv_int(timeout_ms i32, ptr i32) -> i32
//	                                       0 received (i64 written at ptr),
//	                                       1 pending, 2 timed out, 3 fault
//	yield(used i32) -> i32                 1 when used has reached the budget
//
// A negative timeout waits forever. After recv_int reports pending the
// guest must return StatusBlock from step and call recv_int again when
// resumed.
func hostModule(rt wazero.Runtime) wazero.HostModuleBuilder {
	b := rt.NewHostModuleBuilder(HostModule)

	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			var pid term.PID
			if p := process(ctx); p != nil {
				pid = p.Self()
			}
			stack[0] = api.EncodeI64(int64(pid))
		}), nil, []api.ValueType{i64}).
		Export("self")

	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(sendInt(ctx, term.PID(stack[0]), int64(stack[1])))
		}), []api.ValueType{i64, i64}, []api.ValueType{i32}).
		Export("send_int")

	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(recvInt(ctx, m, api.DecodeI32(stack[0]), api.DecodeU32(stack[1])))
		}), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("recv_int")

	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			var over int32
			if p := process(ctx); p != nil && int(api.DecodeI32(stack[0])) >= p.Realm().Config().ReductionBudget {
				over = 1
			}
			stack[0] = api.EncodeI32(over)
		}), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("yield")

	return b
}

func sendInt(ctx context.Context, to term.PID, v int64) int32 {
	p := process(ctx)
	if p == nil || !term.FitsInt(v) {
		return 1
	}
	if err := p.Send(to, term.Int(v)); err != nil {
		Logger().Debug("send_int failed",
			zap.Stringer("from", p.Self()),
			zap.Stringer("to", to),
			zap.Error(err))
		return 1
	}
	return 0
}

func recvInt(ctx context.Context, m api.Module, timeoutMS int32, ptr uint32) int32 {
	p := process(ctx)
	if p == nil {
		return recvFault
	}
	timeout := realm.Infinity
	if timeoutMS >= 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	msg, st := p.Receive(timeout, isInt)
	switch st {
	case realm.Pending:
		return recvPending
	case realm.TimedOut:
		return recvTimeout
	}
	mem := m.Memory()
	if mem == nil || !mem.WriteUint64Le(ptr, uint64(msg.Value.Int())) {
		return recvFault
	}
	return recvOK
}
