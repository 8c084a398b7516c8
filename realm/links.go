package realm

import (
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/mailbox"
	"github.com/wippyai/realm-runtime/term"
)

// lockPair locks two distinct processes in pid order.
func lockPair(a, b *Process) func() {
	first, second := a, b
	if first.pid > second.pid {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (r *Realm) link(a, b term.PID) error {
	if a == b {
		return nil
	}
	pa, pb := r.lookup(a), r.lookup(b)
	if pa == nil {
		return errors.NoProcess(errors.PhaseLink, a)
	}
	if pb == nil {
		return errors.NoProcess(errors.PhaseLink, b)
	}

	unlock := lockPair(pa, pb)
	defer unlock()
	if pa.exited {
		return errors.NoProcess(errors.PhaseLink, a)
	}
	if pb.exited {
		return errors.NoProcess(errors.PhaseLink, b)
	}
	pa.links[b] = struct{}{}
	pb.links[a] = struct{}{}
	return nil
}

func (r *Realm) unlink(a, b term.PID) {
	if pa := r.lookup(a); pa != nil {
		pa.mu.Lock()
		delete(pa.links, b)
		pa.mu.Unlock()
	}
	if pb := r.lookup(b); pb != nil {
		pb.mu.Lock()
		delete(pb.links, a)
		pb.mu.Unlock()
	}
}

func (r *Realm) monitor(observer, target term.PID, w *worker) (term.Ref, error) {
	po := r.lookup(observer)
	if po == nil {
		return term.Ref{}, errors.NoProcess(errors.PhaseLink, observer)
	}
	ref := term.NewRef()

	pt := r.lookup(target)
	if pt == nil || pt == po {
		if pt == nil {
			r.postTerm(po, target, downMessage(ref, target, ReasonNoProc), w)
		}
		return ref, nil
	}

	unlock := lockPair(po, pt)
	if po.exited {
		unlock()
		return term.Ref{}, errors.NoProcess(errors.PhaseLink, observer)
	}
	if pt.exited {
		unlock()
		r.postTerm(po, target, downMessage(ref, target, ReasonNoProc), w)
		return ref, nil
	}
	pt.monitors[ref] = observer
	po.watching[ref] = target
	unlock()
	return ref, nil
}

func (r *Realm) demonitor(observer term.PID, ref term.Ref) bool {
	po := r.lookup(observer)
	if po == nil {
		return false
	}
	po.mu.Lock()
	target, ok := po.watching[ref]
	delete(po.watching, ref)
	po.mu.Unlock()
	if !ok {
		return false
	}
	if pt := r.lookup(target); pt != nil {
		pt.mu.Lock()
		delete(pt.monitors, ref)
		pt.mu.Unlock()
	}
	return true
}

func downMessage(ref term.Ref, pid term.PID, reason any) term.Tuple {
	return term.Tuple{term.Keyword("DOWN"), ref, pid, reason}
}

// terminate runs a process's exit exactly once: links get an exit signal,
// monitors a DOWN message, and the process's memory goes back to the realm.
// It must run on the worker holding the process, or after the workers have
// stopped.
func (r *Realm) terminate(p *Process, reason any, w *worker) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return nil
	}
	p.exited = true
	links, monitors, watching := p.links, p.monitors, p.watching
	p.links, p.monitors, p.watching = nil, nil, nil
	p.mu.Unlock()

	reason = normalizeReason(reason)
	p.state.Store(uint32(StatusExiting))

	for pid := range links {
		peer := r.lookup(pid)
		if peer == nil {
			continue
		}
		peer.mu.Lock()
		delete(peer.links, p.pid)
		peer.mu.Unlock()
		r.post(peer, mailbox.NewExit(p.pid, reason, false), w)
	}
	for ref, pid := range monitors {
		obs := r.lookup(pid)
		if obs == nil {
			continue
		}
		obs.mu.Lock()
		delete(obs.watching, ref)
		obs.mu.Unlock()
		r.postTerm(obs, p.pid, downMessage(ref, p.pid, reason), w)
	}
	for ref, pid := range watching {
		if target := r.lookup(pid); target != nil {
			target.mu.Lock()
			delete(target.monitors, ref)
			target.mu.Unlock()
		}
	}

	var errs error
	p.endWait()
	if c, ok := p.code.(io.Closer); ok {
		errs = multierr.Append(errs, c.Close())
	}
	p.mailbox.Close()
	errs = multierr.Append(errs, p.heap.Release())

	r.remove(p.pid)
	p.state.Store(uint32(StatusExited))
	r.exited.Add(1)

	if term.IsNormal(reason) {
		r.log.Debug("process exited", zap.Stringer("pid", p.pid))
	} else {
		r.log.Debug("process exited",
			zap.Stringer("pid", p.pid),
			zap.String("reason", term.Format(reason)))
	}
	r.emit(Event{Type: EventExited, PID: p.pid, Reason: reason})
	return errs
}
