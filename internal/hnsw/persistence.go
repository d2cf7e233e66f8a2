package hnsw

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/vexfs/vexfs-core/internal/simkernel"
)

// Serialize writes the graph's topology (header, config, nodes, links,
// metadata) to w in the checkpoint format. It holds the graph's read lock
// for the duration of the write.
func (g *Graph) Serialize(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var nodesBuf, linksBuf bytes.Buffer

	for i, n := range g.nodes {
		rec := NodeRecord{VectorID: n.VectorID, Level: int32(n.Level)}
		if n.Tombstone {
			rec.Tombstone = 1
		}
		if err := binary.Write(&nodesBuf, binary.LittleEndian, rec); err != nil {
			return fmt.Errorf("hnsw: encode node %d: %w", i, err)
		}
		for level, links := range n.Links {
			lr := LinkRecord{NodeIndex: uint32(i), Level: int32(level), LinkCount: uint32(len(links))}
			if err := binary.Write(&linksBuf, binary.LittleEndian, lr); err != nil {
				return fmt.Errorf("hnsw: encode link header %d/%d: %w", i, level, err)
			}
			if err := binary.Write(&linksBuf, binary.LittleEndian, links); err != nil {
				return fmt.Errorf("hnsw: encode links %d/%d: %w", i, level, err)
			}
		}
	}

	cfg := ConfigRecord{
		Dimension:            uint32(g.cfg.Dimension),
		M:                    uint32(g.cfg.M),
		EfConstruction:       uint32(g.cfg.EfConstruction),
		EfSearch:             uint32(g.cfg.EfSearch),
		Metric:               uint32(g.cfg.Metric),
		RestructureThreshold: g.cfg.RestructureThreshold,
	}
	var cfgBuf bytes.Buffer
	if err := binary.Write(&cfgBuf, binary.LittleEndian, cfg); err != nil {
		return fmt.Errorf("hnsw: encode config: %w", err)
	}

	meta := MetaRecord{TotalInsertions: uint64(g.size), TotalDeletions: uint64(g.tombstoned)}
	var metaBuf bytes.Buffer
	if err := binary.Write(&metaBuf, binary.LittleEndian, meta); err != nil {
		return fmt.Errorf("hnsw: encode metadata: %w", err)
	}

	checksum := crc32.ChecksumIEEE(cfgBuf.Bytes())
	checksum = crc32.Update(checksum, crc32.IEEETable, nodesBuf.Bytes())
	checksum = crc32.Update(checksum, crc32.IEEETable, linksBuf.Bytes())
	checksum = crc32.Update(checksum, crc32.IEEETable, metaBuf.Bytes())

	hdr := FileHeader{
		Version:     FormatVersion,
		NodeCount:   uint32(len(g.nodes)),
		Dimension:   uint32(g.cfg.Dimension),
		MaxLevel:    int32(g.maxLevel),
		EntryIdx:    g.entryIdx,
		ConfigSize:  uint32(cfgBuf.Len()),
		NodesSize:   uint64(nodesBuf.Len()),
		LinksSize:   uint64(linksBuf.Len()),
		MetaSize:    uint32(metaBuf.Len()),
		ChecksumCRC: checksum,
	}
	copy(hdr.Magic[:], FileMagic)
	if g.hasEntry {
		hdr.HasEntry = 1
	}

	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("hnsw: write header: %w", err)
	}
	for _, section := range []*bytes.Buffer{&cfgBuf, &nodesBuf, &linksBuf, &metaBuf} {
		if _, err := w.Write(section.Bytes()); err != nil {
			return fmt.Errorf("hnsw: write section: %w", err)
		}
	}
	return nil
}

// Deserialize rebuilds a graph's topology from r, validating the CRC32
// checksum over every section before committing state. The graph's
// VectorSource and WAL are taken from the receiver, which must already be
// constructed via NewGraph with the matching Config.
func (g *Graph) Deserialize(r io.Reader) error {
	var hdr FileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("hnsw: read header: %w", err)
	}
	if string(bytes.TrimRight(hdr.Magic[:], "\x00")) != "VXHNSW1" {
		return fmt.Errorf("hnsw: bad file magic")
	}
	if hdr.Version > FormatVersion {
		return fmt.Errorf("hnsw: unsupported format version %d", hdr.Version)
	}

	cfgBytes := make([]byte, hdr.ConfigSize)
	nodesBytes := make([]byte, hdr.NodesSize)
	linksBytes := make([]byte, hdr.LinksSize)
	metaBytes := make([]byte, hdr.MetaSize)
	for _, b := range [][]byte{cfgBytes, nodesBytes, linksBytes, metaBytes} {
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("hnsw: read section: %w", err)
		}
	}

	checksum := crc32.ChecksumIEEE(cfgBytes)
	checksum = crc32.Update(checksum, crc32.IEEETable, nodesBytes)
	checksum = crc32.Update(checksum, crc32.IEEETable, linksBytes)
	checksum = crc32.Update(checksum, crc32.IEEETable, metaBytes)
	if checksum != hdr.ChecksumCRC {
		return fmt.Errorf("hnsw: checksum mismatch: file is corrupt")
	}

	var cfg ConfigRecord
	if err := binary.Read(bytes.NewReader(cfgBytes), binary.LittleEndian, &cfg); err != nil {
		return fmt.Errorf("hnsw: decode config: %w", err)
	}

	nodeCount := int(hdr.NodeCount)
	nodes := make([]*Node, nodeCount)
	idToIndex := make(map[uint64]uint32, nodeCount)
	nr := bytes.NewReader(nodesBytes)
	for i := 0; i < nodeCount; i++ {
		var rec NodeRecord
		if err := binary.Read(nr, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("hnsw: decode node %d: %w", i, err)
		}
		n := &Node{VectorID: rec.VectorID, Level: int(rec.Level), Tombstone: rec.Tombstone != 0}
		n.Links = make([][]uint32, n.Level+1)
		nodes[i] = n
		if !n.Tombstone {
			idToIndex[n.VectorID] = uint32(i)
		}
	}

	lr := bytes.NewReader(linksBytes)
	for lr.Len() > 0 {
		var head LinkRecord
		if err := binary.Read(lr, binary.LittleEndian, &head); err != nil {
			return fmt.Errorf("hnsw: decode link header: %w", err)
		}
		links := make([]uint32, head.LinkCount)
		if err := binary.Read(lr, binary.LittleEndian, &links); err != nil {
			return fmt.Errorf("hnsw: decode links: %w", err)
		}
		if int(head.NodeIndex) < len(nodes) && int(head.Level) < len(nodes[head.NodeIndex].Links) {
			nodes[head.NodeIndex].Links[head.Level] = links
		}
	}

	var meta MetaRecord
	if err := binary.Read(bytes.NewReader(metaBytes), binary.LittleEndian, &meta); err != nil {
		return fmt.Errorf("hnsw: decode metadata: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.Dimension = int(cfg.Dimension)
	g.cfg.M = int(cfg.M)
	g.cfg.EfConstruction = int(cfg.EfConstruction)
	g.cfg.EfSearch = int(cfg.EfSearch)
	g.cfg.Metric = simkernel.Metric(cfg.Metric)
	g.cfg.RestructureThreshold = cfg.RestructureThreshold
	kernel, err := simkernel.NewKernel(g.cfg.Metric)
	if err != nil {
		return fmt.Errorf("hnsw: %w", err)
	}
	g.kernel = kernel
	g.nodes = nodes
	g.idToIndex = idToIndex
	g.entryIdx = hdr.EntryIdx
	g.hasEntry = hdr.HasEntry != 0
	g.maxLevel = int(hdr.MaxLevel)
	g.size = int(meta.TotalInsertions)
	g.tombstoned = int(meta.TotalDeletions)
	g.state = StateReady
	return nil
}

// SaveToDisk checkpoints the graph to path, first physically compacting
// tombstoned nodes (spec: "physical removal at next checkpoint").
func (g *Graph) SaveToDisk(ctx context.Context, path string) error {
	g.CompactTombstones(ctx)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hnsw: create checkpoint file: %w", err)
	}
	defer f.Close()

	g.mu.Lock()
	g.state = StateCheckpointing
	g.mu.Unlock()

	if err := g.Serialize(f); err != nil {
		return err
	}

	g.mu.Lock()
	g.state = StateReady
	g.mu.Unlock()
	return f.Sync()
}

// LoadFromDisk replaces the graph's topology with the checkpoint at path,
// transitioning through StateRecovering until the replace completes.
func (g *Graph) LoadFromDisk(ctx context.Context, path string) error {
	g.mu.Lock()
	g.state = StateRecovering
	g.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hnsw: open checkpoint file: %w", err)
	}
	defer f.Close()

	return g.Deserialize(f)
}
