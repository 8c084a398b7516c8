package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wippyai/realm-runtime/realm"
	"github.com/wippyai/realm-runtime/term"
	"github.com/wippyai/realm-runtime/wasmcode"
)

var tokenKey = term.Intern("token")

// ring spawns n processes passing a countdown token around a ring. Each
// hop decrements it; a member exits after forwarding a value below n, so
// all members stop once the token runs out. The token carries payload
// bytes, which are pooled and shared rather than copied when large.
func ring(r *realm.Realm, n, rounds, payload int, prio realm.Priority) ([]term.PID, error) {
	if n < 1 {
		return nil, nil
	}
	pids := make([]term.PID, n)
	for i := range pids {
		next := func() term.PID { return pids[(i+1)%n] }
		pid, err := r.Spawn(member(next, int64(n)), realm.WithPriority(prio))
		if err != nil {
			return nil, err
		}
		pids[i] = pid
	}
	start := term.Tuple{term.Keyword("token"), int64(rounds * n), make([]byte, payload)}
	if err := r.Send(pids[0], start); err != nil {
		return nil, err
	}
	return pids, nil
}

func isToken(p *realm.Process) func(term.Value) bool {
	return func(v term.Value) bool {
		k, err := p.Heap().Elem(v, 0)
		return err == nil && k == tokenKey
	}
}

func member(next func() term.PID, n int64) realm.CodeFunc {
	return func(p *realm.Process, budget int) realm.Result {
		h := p.Heap()
		for used := 1; used <= budget; used++ {
			m, st := p.Receive(realm.Infinity, isToken(p))
			if st == realm.Pending {
				return realm.Block(used)
			}
			cv, err := h.Elem(m.Value, 1)
			if err != nil {
				return realm.Fail(err, used)
			}
			v, err := h.IntValue(cv)
			if err != nil {
				return realm.Fail(err, used)
			}
			if v > 0 {
				bin, err := h.Elem(m.Value, 2)
				if err != nil {
					return realm.Fail(err, used)
				}
				tok, err := h.Tuple(tokenKey, term.Int(v-1), bin)
				if err != nil {
					return realm.Fail(err, used)
				}
				if err := p.Send(next(), tok); err != nil {
					return realm.Fail(err, used)
				}
			}
			if v < n {
				return realm.Exit(realm.ReasonNormal, used)
			}
		}
		return realm.Yield(budget)
	}
}

// guests loads a WebAssembly module and spawns count instances of it.
func guests(ctx context.Context, eng *wasmcode.Engine, r *realm.Realm, path string, count int) ([]term.PID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guest: %w", err)
	}
	mod, err := eng.Load(ctx, data)
	if err != nil {
		return nil, err
	}
	pids := make([]term.PID, 0, count)
	for range count {
		code, err := mod.NewCode(ctx)
		if err != nil {
			return pids, err
		}
		pid, err := r.Spawn(code)
		if err != nil {
			_ = code.Close()
			return pids, err
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
