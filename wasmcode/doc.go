// Package wasmcode runs WebAssembly guests as realm process code.
//
// A guest exports step(budget i32) -> i64. The high 32 bits of the result
// are a status (StatusYield, StatusBlock, StatusExit, StatusExitError) and
// the low 32 bits the reductions it consumed. Guests talk to the realm
// through the "realm" import module: self, send_int, recv_int and yield.
//
//	eng, err := wasmcode.NewEngine(ctx, wasmcode.Config{})
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	code, err := mod.NewCode(ctx)
//	pid, err := r.Spawn(code)
//
// Each Code owns one instance and is closed by the realm when its process
// exits. Instance memory is private to the process, like its heap.
package wasmcode
