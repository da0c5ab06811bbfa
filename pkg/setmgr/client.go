package setmgr

import "sync/atomic"

// clientNode is one row of the client registry (spec §3 "Client
// registry"): {thread_id, observed_vsn}, modeled here as an opaque
// handle rather than indexed by a language-level thread identifier
// (spec §9 "in a language without thread-local identifiers, pass an
// opaque client handle at checkpoint/leave").
type clientNode struct {
	observedVsn atomic.Uint64
	left        atomic.Bool
	next        atomic.Pointer[clientNode]
}

// Client is an opaque handle obtained from [Manager.Join]. Background
// workers and long-lived callers checkpoint periodically so the vacuum
// worker's horizon can advance; Leave removes the row once a caller is
// done observing the directory.
type Client struct {
	mgr  *Manager
	node *clientNode
}

// Join registers a new client row observing the manager's current
// version, and returns a handle for Checkpoint/Leave.
func (m *Manager) Join() *Client {
	n := &clientNode{}
	n.observedVsn.Store(m.currentVsn.Load())

	m.clientsLock.Lock()
	n.next.Store(m.clientsHead.Load())
	m.clientsHead.Store(n)
	m.clientsLock.Unlock()

	return &Client{mgr: m, node: n}
}

// Checkpoint publishes observed_vsn = current_vsn, allowing the vacuum
// worker to advance its horizon past this client.
func (c *Client) Checkpoint() {
	c.node.observedVsn.Store(c.mgr.currentVsn.Load())
}

// Leave marks the client row left, so concurrent vacuum horizon
// computations ignore it immediately, and unlinks it from the registry.
// A walker already standing on the row still reaches the rest of the
// list through its next pointer.
func (c *Client) Leave() {
	c.node.left.Store(true)

	m := c.mgr
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()

	if m.clientsHead.Load() == c.node {
		m.clientsHead.Store(c.node.next.Load())
		return
	}

	for n := m.clientsHead.Load(); n != nil; n = n.next.Load() {
		if n.next.Load() == c.node {
			n.next.Store(c.node.next.Load())
			return
		}
	}
}

// clientsMinVsn returns the minimum observed_vsn among all non-left
// client rows, or current_vsn if there are none (nothing to protect).
func (m *Manager) clientsMinVsn() uint64 {
	min := m.currentVsn.Load()
	found := false

	for n := m.clientsHead.Load(); n != nil; n = n.next.Load() {
		if n.left.Load() {
			continue
		}

		v := n.observedVsn.Load()
		if !found || v < min {
			min = v
			found = true
		}
	}

	return min
}
