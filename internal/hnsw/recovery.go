package hnsw

import (
	"context"
	"encoding/binary"
	"fmt"
)

// ReplayStats reports what happened during WAL replay (spec §4.4
// "apply_wal(reader) → replay_stats").
type ReplayStats struct {
	TransactionsSeen      int
	TransactionsCommitted int
	TransactionsDiscarded int
	OpsApplied            int
}

// ApplyWAL replays every committed transaction recorded in the graph's WAL
// file into the in-memory graph. Entries belonging to a transaction with no
// trailing commit record (crash mid-write, or an explicit rollback) are
// discarded. Replay is idempotent: an insert for an id already present, or
// a delete for an id already tombstoned/absent, is a no-op rather than an
// error, so replaying the same suffix twice yields the same graph (spec §8
// "WAL replay is idempotent").
func (g *Graph) ApplyWAL(ctx context.Context) (ReplayStats, error) {
	if g.wal == nil {
		return ReplayStats{}, nil
	}

	entries, err := readAll(g.wal.path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("hnsw: wal replay: %w", err)
	}

	byTx := make(map[uint64][]rawEntry)
	committed := make(map[uint64]bool)
	var order []uint64
	for _, e := range entries {
		if _, seen := byTx[e.TxID]; !seen {
			order = append(order, e.TxID)
		}
		byTx[e.TxID] = append(byTx[e.TxID], e)
		if e.Op == OpTxCommit {
			committed[e.TxID] = true
		}
	}

	g.mu.Lock()
	g.state = StateRecovering
	g.mu.Unlock()

	stats := ReplayStats{}
	for _, tx := range order {
		if tx == 0 {
			// Checkpoint markers are logged under tx id 0, outside any
			// transaction; they carry no graph mutation to replay.
			continue
		}
		stats.TransactionsSeen++
		if !committed[tx] {
			stats.TransactionsDiscarded++
			continue
		}
		stats.TransactionsCommitted++

		for _, op := range byTx[tx] {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			switch op.Op {
			case OpVectorInsert:
				id := binary.LittleEndian.Uint64(op.Payload)
				if err := g.replayInsert(ctx, id); err != nil {
					return stats, err
				}
				stats.OpsApplied++
			case OpVectorDelete:
				id := binary.LittleEndian.Uint64(op.Payload)
				if err := g.replayDelete(ctx, id); err != nil {
					return stats, err
				}
				stats.OpsApplied++
			case OpTxBegin, OpTxCommit, OpTxRollback:
				// Bookkeeping only.
			}
		}
	}

	g.mu.Lock()
	if g.hasEntry || g.size > 0 {
		g.state = StateReady
	} else {
		g.state = StateEmpty
	}
	g.mu.Unlock()
	return stats, nil
}

// replayInsert re-runs Insert for a WAL-recorded id, fetching its vector
// from the storage engine by id (the graph never persists vector bytes of
// its own). An already-present id is treated as already-applied.
func (g *Graph) replayInsert(ctx context.Context, id uint64) error {
	g.mu.RLock()
	_, exists := g.idToIndex[id]
	g.mu.RUnlock()
	if exists {
		return nil
	}

	vec, err := g.source.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("hnsw: replay insert %d: fetch vector: %w", id, err)
	}

	// Bypass g.Insert's own WAL append: the entry being replayed is
	// already durable.
	savedWAL := g.wal
	g.wal = nil
	err = g.Insert(ctx, id, vec)
	g.wal = savedWAL
	if err != nil {
		return fmt.Errorf("hnsw: replay insert %d: %w", id, err)
	}
	return nil
}

func (g *Graph) replayDelete(ctx context.Context, id uint64) error {
	g.mu.RLock()
	_, exists := g.idToIndex[id]
	g.mu.RUnlock()
	if !exists {
		return nil
	}

	savedWAL := g.wal
	g.wal = nil
	err := g.Delete(ctx, id)
	g.wal = savedWAL
	if err != nil {
		return fmt.Errorf("hnsw: replay delete %d: %w", id, err)
	}
	return nil
}

// Checkpoint durably writes the current graph to path and truncates the
// WAL, recording the tx id up to which entries are now redundant (spec
// §4.4 "Checkpoint"). A successful checkpoint physically removes
// tombstoned nodes (via SaveToDisk's compaction; CompactTombstones can
// also be called on its own) and is the only point at which the WAL may
// be safely discarded.
func (g *Graph) Checkpoint(ctx context.Context, path string) error {
	if err := g.SaveToDisk(ctx, path); err != nil {
		return fmt.Errorf("hnsw: checkpoint: %w", err)
	}

	if g.wal != nil {
		uptoTx := g.wal.NextTxID() - 1
		if err := g.wal.LogCheckpoint(uptoTx); err != nil {
			return fmt.Errorf("hnsw: checkpoint: wal marker: %w", err)
		}
		if err := g.wal.Truncate(); err != nil {
			return fmt.Errorf("hnsw: checkpoint: wal truncate: %w", err)
		}
	}
	return nil
}
