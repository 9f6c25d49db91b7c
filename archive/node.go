// Copyright (c) 2026, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package archive provides Node, a post-synaptic node that archives its own
spikes for the plastic connections onto it.  It implements stdp.Target:
the spike history with per-entry access counters, the post-synaptic trace
Kminus, the queue of pending stdp.Corrections, and an inbox for the weight
events it receives.

Any number of connections may call History, KValue, AddCorrection and
Dispatch concurrently.  RecordSpike and CloseWindows are called by the
single owner of the node.
*/
package archive

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/emer/axstdp/stdp"
)

// Corrector replays a pending correction for a missing spike.  It is
// implemented by the host, which knows how to find the connection at
// c.Addr.
type Corrector interface {
	Correct(c *stdp.Correction, missing float64) error
}

// Node is a post-synaptic node archiving its spike history
type Node struct {
	Idx       int       `desc:"index of this node, reported as Event.Receiver"`
	TauMinus  float64   `def:"20" min:"0" desc:"time constant of the post-synaptic trace Kminus, in ms"`
	Eps       float64   `def:"1e-6" desc:"causality tolerance, in ms: history bounds are shifted by it"`
	Corrector Corrector `desc:"receives the pending corrections covered by each new spike"`

	TauMinusInv float64 `view:"-" desc:"1 / TauMinus"`

	mu        sync.Mutex
	hist      []stdp.HistEntry
	kminus    float64
	tLast     float64
	nIncoming int
	maxDelay  float64

	cmu     sync.Mutex
	pending []*stdp.Correction

	emu    sync.Mutex
	events []stdp.Event
}

// NewNode returns a node with default parameters.
func NewNode(idx int, cor Corrector) *Node {
	nd := &Node{Idx: idx, Corrector: cor}
	nd.Defaults()
	return nd
}

func (nd *Node) Defaults() {
	nd.TauMinus = 20
	nd.Eps = 1e-6
	nd.Update()
}

// Update must be called after any changes to parameters
func (nd *Node) Update() {
	if nd.TauMinus > 0 {
		nd.TauMinusInv = 1 / nd.TauMinus
	}
}

func (nd *Node) ID() int { return nd.Idx }

// RegisterConn counts a new incoming plastic connection.  Entries at or
// before tFirstRead will never be read by it, so they count as read.
func (nd *Node) RegisterConn(tFirstRead, delay float64) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.nIncoming++
	if delay > nd.maxDelay {
		nd.maxDelay = delay
	}
	for i := range nd.hist {
		if nd.hist[i].T-tFirstRead > nd.Eps {
			break
		}
		nd.hist[i].Access++
	}
}

// RecordSpike archives a post-synaptic spike at t, which must not precede
// the previous one, and then replays every pending correction whose window
// covers t, in the order they were queued.  The first error from the
// Corrector stops the replay and is returned.
func (nd *Node) RecordSpike(t float64) error {
	nd.mu.Lock()
	if len(nd.hist) > 0 && t < nd.tLast {
		nd.mu.Unlock()
		return fmt.Errorf("archive: node %d: spike at %v precedes last spike at %v", nd.Idx, t, nd.tLast)
	}
	nd.kminus = nd.kminus*math.Exp((nd.tLast-t)*nd.TauMinusInv) + 1
	nd.tLast = t
	nd.pruneHist(t)
	nd.hist = append(nd.hist, stdp.HistEntry{T: t, Kminus: nd.kminus})
	nd.mu.Unlock()

	for _, c := range nd.covering(t) {
		if nd.Corrector == nil {
			break
		}
		if err := nd.Corrector.Correct(c, t); err != nil {
			return err
		}
	}
	return nil
}

// pruneHist drops entries that every incoming connection has read and that
// no connection can need again.  Must hold mu.
func (nd *Node) pruneHist(t float64) {
	if nd.nIncoming == 0 {
		return
	}
	n := 0
	for len(nd.hist)-n > 1 {
		if nd.hist[n].Access >= nd.nIncoming && t-nd.hist[n+1].T > nd.maxDelay+nd.Eps {
			n++
			continue
		}
		break
	}
	if n > 0 {
		nd.hist = append(nd.hist[:0], nd.hist[n:]...)
	}
}

// History appends the entries with from+Eps <= t < to+Eps to dst and
// counts the read.
func (nd *Node) History(dst []stdp.HistEntry, from, to float64) []stdp.HistEntry {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	lo := from + nd.Eps
	hi := to + nd.Eps
	st := sort.Search(len(nd.hist), func(i int) bool { return nd.hist[i].T >= lo })
	for i := st; i < len(nd.hist) && nd.hist[i].T < hi; i++ {
		nd.hist[i].Access++
		dst = append(dst, nd.hist[i])
	}
	return dst
}

// KValue returns Kminus at t, counting only spikes more than Eps before t.
func (nd *Node) KValue(t float64) float64 {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	for i := len(nd.hist) - 1; i >= 0; i-- {
		h := &nd.hist[i]
		if t-h.T > nd.Eps {
			return h.Kminus * math.Exp((h.T-t)*nd.TauMinusInv)
		}
	}
	return 0
}

// HistLen returns the number of archived spikes.
func (nd *Node) HistLen() int {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	return len(nd.hist)
}

// HistCopy returns a copy of the archived spikes.
func (nd *Node) HistCopy() []stdp.HistEntry {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	return append([]stdp.HistEntry(nil), nd.hist...)
}

//////////////////////////////////////////////////////////////////////////////////////
//  Inbox

// Dispatch receives a weight event.
func (nd *Node) Dispatch(ev stdp.Event) {
	nd.emu.Lock()
	nd.events = append(nd.events, ev)
	nd.emu.Unlock()
}

// Events returns a copy of the events received so far.
func (nd *Node) Events() []stdp.Event {
	nd.emu.Lock()
	defer nd.emu.Unlock()
	return append([]stdp.Event(nil), nd.events...)
}

// NetWeight returns the effective weight of the spike from addr stamped at
// stamp: the original event plus all corrections to it.
func (nd *Node) NetWeight(addr stdp.Addr, stamp float64) float64 {
	nd.emu.Lock()
	defer nd.emu.Unlock()
	w := 0.0
	for i := range nd.events {
		ev := &nd.events[i]
		if ev.Addr == addr && ev.Stamp == stamp {
			w += ev.Weight
		}
	}
	return w
}

// ResetEvents clears the inbox.
func (nd *Node) ResetEvents() {
	nd.emu.Lock()
	nd.events = nd.events[:0]
	nd.emu.Unlock()
}
