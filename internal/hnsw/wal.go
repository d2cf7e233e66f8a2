package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"
)

// Op identifies a WAL-logged graph mutation (spec §3 "WAL Entry").
type Op uint8

const (
	OpTxBegin Op = iota
	OpVectorInsert
	OpVectorDelete
	OpConnectionAdd
	OpConnectionRemove
	OpLayerCreate
	OpLayerUpdate
	OpTxCommit
	OpTxRollback
	OpCheckpoint
)

// walMagic identifies a VexFS HNSW WAL file.
const walMagic = "VXWAL1\x00\x00"

// entryHeader is the fixed-size framing written before every entry's
// payload: magic, tx id, sequence within transaction, op, payload size,
// timestamp and a CRC over the payload (spec §4.4 "Format").
type entryHeader struct {
	Magic       [8]byte
	TxID        uint64
	Seq         uint32
	Op          uint8
	_           [3]byte
	PayloadSize uint32
	TimestampNS int64
	CRC         uint32
}

// WAL is the append-only write-ahead log backing a Graph's durability.
// Every state-mutating operation is appended and fsync'd before it is
// considered committed to a reader (spec §4.4 "Write-ahead log").
type WAL struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	path    string
	nextTx  uint64
	curTx   uint64
	curSeq  uint32
	inTx    bool
	sinceCP int
}

// OpenWAL opens or creates the WAL file at path, appending to any existing
// content.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open wal: %w", err)
	}
	return &WAL{f: f, w: bufio.NewWriter(f), path: path, nextTx: 1}, nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

// begin starts a new transaction if one is not already open, returning the
// transaction id the subsequent entries belong to.
func (w *WAL) begin() (uint64, error) {
	if w.inTx {
		return w.curTx, nil
	}
	tx := w.nextTx
	w.nextTx++
	w.curTx = tx
	w.curSeq = 0
	w.inTx = true
	if err := w.append(tx, OpTxBegin, nil); err != nil {
		return 0, err
	}
	return tx, nil
}

// commit durably marks the open transaction complete. Per spec §3, a
// commit record implies every preceding entry with the same tx id is
// durable; the fsync happens before this call returns.
func (w *WAL) commit() error {
	if !w.inTx {
		return nil
	}
	if err := w.append(w.curTx, OpTxCommit, nil); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("hnsw: wal flush: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("hnsw: wal fsync: %w", err)
	}
	w.inTx = false
	w.sinceCP++
	return nil
}

// rollback abandons the open transaction; its entries remain in the file
// but replay skips them since no commit record follows.
func (w *WAL) rollback() error {
	if !w.inTx {
		return nil
	}
	err := w.append(w.curTx, OpTxRollback, nil)
	w.inTx = false
	return err
}

func (w *WAL) append(tx uint64, op Op, payload []byte) error {
	hdr := entryHeader{
		TxID:        tx,
		Seq:         w.curSeq,
		Op:          uint8(op),
		PayloadSize: uint32(len(payload)),
		TimestampNS: time.Now().UnixNano(),
		CRC:         crc32.ChecksumIEEE(payload),
	}
	copy(hdr.Magic[:], walMagic)
	w.curSeq++

	if err := binary.Write(w.w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("hnsw: wal write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return fmt.Errorf("hnsw: wal write payload: %w", err)
		}
	}
	return nil
}

// LogInsert appends a single-operation transaction recording a vector
// insert, durable once this call returns.
func (w *WAL) LogInsert(id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logSingleOp(OpVectorInsert, id)
}

// LogDelete appends a single-operation transaction recording a vector
// delete.
func (w *WAL) LogDelete(id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logSingleOp(OpVectorDelete, id)
}

func (w *WAL) logSingleOp(op Op, id uint64) error {
	if _, err := w.begin(); err != nil {
		return err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], id)
	if err := w.append(w.curTx, op, payload[:]); err != nil {
		w.rollback()
		return err
	}
	return w.commit()
}

// LogCheckpoint appends a checkpoint marker recording the highest tx id
// the WAL may be truncated up to.
func (w *WAL) LogCheckpoint(uptoTx uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uptoTx)
	if err := w.append(0, OpCheckpoint, payload[:]); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	w.sinceCP = 0
	return w.f.Sync()
}

// SinceCheckpoint reports how many transactions have committed since the
// last checkpoint, for the "every N operations" checkpoint trigger.
func (w *WAL) SinceCheckpoint() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sinceCP
}

// NextTxID reports the transaction id that will be assigned to the next
// transaction begun on this WAL.
func (w *WAL) NextTxID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextTx
}

// rawEntry is one decoded WAL record, used by replay.
type rawEntry struct {
	TxID    uint64
	Seq     uint32
	Op      Op
	Payload []byte
}

// readAll parses every entry currently in the WAL file from the start,
// independent of any in-progress append state.
func readAll(path string) ([]rawEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hnsw: open wal for replay: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var entries []rawEntry
	for {
		var hdr entryHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if err == io.EOF {
				break
			}
			// A short/corrupt trailing record means the last append was
			// interrupted mid-write; replay treats the log as ending at
			// the last complete entry rather than failing outright.
			break
		}
		if string(hdr.Magic[:7]) != "VXWAL1" {
			break
		}
		payload := make([]byte, hdr.PayloadSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		if crc32.ChecksumIEEE(payload) != hdr.CRC {
			break
		}
		entries = append(entries, rawEntry{TxID: hdr.TxID, Seq: hdr.Seq, Op: Op(hdr.Op), Payload: payload})
	}
	return entries, nil
}

// Truncate discards all WAL entries, used after a successful checkpoint
// durably captures the graph snapshot.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.f.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("hnsw: recreate wal: %w", err)
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	w.sinceCP = 0
	return nil
}
