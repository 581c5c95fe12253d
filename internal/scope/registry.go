package scope

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// TxID numbers top-level transactions. Unique for the life of the process.
type TxID uint64

// SavepointID numbers savepoints. Zero means "no savepoint".
type SavepointID uint64

// connEntry holds the open scopes of one connection. mu is held for the
// whole of a begin/commit/rollback so the database call and the bookkeeping
// change happen together.
type connEntry struct {
	mu  sync.Mutex
	txs map[TxID]map[SavepointID]struct{}
}

// Registry records which transactions and savepoints are open on each
// connection. It is safe for concurrent use; operations on different
// connections never contend with each other.
type Registry struct {
	lastTx atomic.Uint64
	lastSp atomic.Uint64

	mu    sync.RWMutex
	conns map[ConnID]*connEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[ConnID]*connEntry),
	}
}

// NextTxID allocates the next transaction identity.
func (r *Registry) NextTxID() TxID {
	return TxID(r.lastTx.Add(1))
}

// NextSavepointID allocates the next savepoint identity. Never returns zero.
func (r *Registry) NextSavepointID() SavepointID {
	return SavepointID(r.lastSp.Add(1))
}

// entry returns the connection's entry, creating it if asked to.
func (r *Registry) entry(conn ConnID, create bool) *connEntry {
	r.mu.RLock()
	e := r.conns[conn]
	r.mu.RUnlock()
	if e != nil || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.conns[conn]; e == nil {
		e = &connEntry{txs: make(map[TxID]map[SavepointID]struct{})}
		r.conns[conn] = e
	}
	return e
}

// lock acquires the connection's entry lock and returns the entry.
func (r *Registry) lock(conn ConnID) *connEntry {
	e := r.entry(conn, true)
	e.mu.Lock()
	return e
}

// lockExisting is lock for connections already in the registry. It returns
// nil, holding nothing, if conn has no entry.
func (r *Registry) lockExisting(conn ConnID) *connEntry {
	e := r.entry(conn, false)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	return e
}

// RegisterTransaction records a new open transaction with no savepoints.
// Registering an identity twice is a programming error and panics.
func (r *Registry) RegisterTransaction(conn ConnID, tx TxID) {
	e := r.lock(conn)
	defer e.mu.Unlock()
	e.registerTransaction(tx)
}

// RegisterSavepoint records a new open savepoint inside tx. The transaction
// must be open and the savepoint must be new; otherwise it panics.
func (r *Registry) RegisterSavepoint(conn ConnID, tx TxID, sp SavepointID) {
	e := r.lock(conn)
	defer e.mu.Unlock()
	e.registerSavepoint(tx, sp)
}

// HasOpenTransaction reports whether tx is open on conn.
func (r *Registry) HasOpenTransaction(conn ConnID, tx TxID) bool {
	e := r.entry(conn, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isOpen(tx, 0)
}

// HasOpenSavepoint reports whether sp is open inside tx on conn.
func (r *Registry) HasOpenSavepoint(conn ConnID, tx TxID, sp SavepointID) bool {
	e := r.entry(conn, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isOpen(tx, sp)
}

// CloseTransaction removes tx and all of its savepoints. It returns false if
// tx was not open.
func (r *Registry) CloseTransaction(conn ConnID, tx TxID) bool {
	e := r.entry(conn, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeTransaction(tx)
}

// CloseSavepointsFrom removes every savepoint of tx whose identity is at
// least threshold and returns how many were removed.
func (r *Registry) CloseSavepointsFrom(conn ConnID, tx TxID, threshold SavepointID) int {
	e := r.entry(conn, false)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeSavepointsFrom(tx, threshold)
}

// CurrentTransaction returns the most recent open transaction on conn.
func (r *Registry) CurrentTransaction(conn ConnID) (TxID, bool) {
	e := r.entry(conn, false)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current()
}

// PurgeConnection forgets everything recorded for conn without touching the
// database. It returns the number of transactions dropped.
func (r *Registry) PurgeConnection(conn ConnID) int {
	r.mu.Lock()
	e := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.txs)
	// A scope still holding this entry must see it as empty.
	e.txs = make(map[TxID]map[SavepointID]struct{})
	return n
}

// Snapshot returns the open savepoints of every open transaction on conn,
// each list in ascending order.
func (r *Registry) Snapshot(conn ConnID) map[TxID][]SavepointID {
	out := make(map[TxID][]SavepointID)
	e := r.entry(conn, false)
	if e == nil {
		return out
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for tx, sps := range e.txs {
		ids := make([]SavepointID, 0, len(sps))
		for sp := range sps {
			ids = append(ids, sp)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[tx] = ids
	}
	return out
}

// The methods below require e.mu to be held.

func (e *connEntry) registerTransaction(tx TxID) {
	if _, ok := e.txs[tx]; ok {
		// ALLOW-PANIC: identities come from a monotonic sequence
		panic(fmt.Sprintf("scope: transaction %d registered twice", tx))
	}
	e.txs[tx] = make(map[SavepointID]struct{})
}

func (e *connEntry) registerSavepoint(tx TxID, sp SavepointID) {
	sps, ok := e.txs[tx]
	if !ok {
		// ALLOW-PANIC: savepoints are only created under an open transaction
		panic(fmt.Sprintf("scope: savepoint %d registered under closed transaction %d", sp, tx))
	}
	if _, dup := sps[sp]; dup || sp == 0 {
		// ALLOW-PANIC: identities come from a monotonic sequence
		panic(fmt.Sprintf("scope: savepoint %d registered twice", sp))
	}
	sps[sp] = struct{}{}
}

// isOpen checks a transaction (sp == 0) or a savepoint inside it.
func (e *connEntry) isOpen(tx TxID, sp SavepointID) bool {
	sps, ok := e.txs[tx]
	if !ok {
		return false
	}
	if sp == 0 {
		return true
	}
	_, ok = sps[sp]
	return ok
}

func (e *connEntry) closeTransaction(tx TxID) bool {
	if _, ok := e.txs[tx]; !ok {
		return false
	}
	delete(e.txs, tx)
	return true
}

func (e *connEntry) closeSavepointsFrom(tx TxID, threshold SavepointID) int {
	sps, ok := e.txs[tx]
	if !ok {
		return 0
	}
	n := 0
	for sp := range sps {
		if sp >= threshold {
			delete(sps, sp)
			n++
		}
	}
	return n
}

func (e *connEntry) current() (TxID, bool) {
	var cur TxID
	for tx := range e.txs {
		if tx > cur {
			cur = tx
		}
	}
	return cur, cur != 0
}
