// Copyright (c) 2026, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archive

import "github.com/emer/axstdp/stdp"

// AddCorrection queues c until its window closes.
func (nd *Node) AddCorrection(c *stdp.Correction) {
	nd.cmu.Lock()
	nd.pending = append(nd.pending, c)
	nd.cmu.Unlock()
}

// covering returns the live pending corrections whose window covers t.
func (nd *Node) covering(t float64) []*stdp.Correction {
	nd.cmu.Lock()
	defer nd.cmu.Unlock()
	var cs []*stdp.Correction
	for _, c := range nd.pending {
		if !c.Dead && c.Covers(t, nd.Eps) {
			cs = append(cs, c)
		}
	}
	return cs
}

// CloseWindows drops the corrections whose window ends at or before t:
// every spike that could concern them has been recorded.  They are marked
// Closed so their connections can let go of them too.
// Returns the number dropped.
func (nd *Node) CloseWindows(t float64) int {
	nd.cmu.Lock()
	defer nd.cmu.Unlock()
	n := 0
	for _, c := range nd.pending {
		if c.Dead {
			continue
		}
		if c.TReceived <= t {
			c.Closed = true
			continue
		}
		nd.pending[n] = c
		n++
	}
	dropped := len(nd.pending) - n
	clear(nd.pending[n:])
	nd.pending = nd.pending[:n]
	return dropped
}

// DropCorrections marks the pending corrections of a removed connection
// dead and removes them, so they are never replayed.
func (nd *Node) DropCorrections(addr stdp.Addr) int {
	nd.cmu.Lock()
	defer nd.cmu.Unlock()
	n := 0
	for _, c := range nd.pending {
		if c.Addr == addr {
			c.Dead = true
			continue
		}
		nd.pending[n] = c
		n++
	}
	dropped := len(nd.pending) - n
	clear(nd.pending[n:])
	nd.pending = nd.pending[:n]
	return dropped
}

// Pending returns the number of queued corrections.
func (nd *Node) Pending() int {
	nd.cmu.Lock()
	defer nd.cmu.Unlock()
	return len(nd.pending)
}
