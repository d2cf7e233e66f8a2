package hnsw

// Binary on-disk layout for a checkpointed graph. The file never
// duplicates vector data — only topology — since vectors live in the
// storage engine (C3) and are re-fetched through VectorSource on load.
const (
	// FileMagic identifies a VexFS HNSW graph file.
	FileMagic = "VXHNSW1\x00"

	FormatVersion = uint32(1)

	// SectionAlignment matches the storage engine's block alignment so
	// sections can be mapped without a sub-block copy.
	SectionAlignment = 64
)

// FileHeader is the fixed 136-byte file header.
type FileHeader struct {
	Magic       [8]byte
	Version     uint32
	NodeCount   uint32
	Dimension   uint32
	MaxLevel    int32
	EntryIdx    uint32
	HasEntry    uint32
	ConfigSize  uint32
	NodesSize   uint64
	LinksSize   uint64
	MetaSize    uint32
	ChecksumCRC uint32
	Reserved    [76]byte
}

// ConfigRecord mirrors Config for persistence.
type ConfigRecord struct {
	Dimension            uint32
	M                    uint32
	EfConstruction       uint32
	EfSearch             uint32
	Metric               uint32
	RestructureThreshold float64
}

// NodeRecord is one fixed-size topology entry per node.
type NodeRecord struct {
	VectorID  uint64
	Level     int32
	Tombstone uint8
	_         [3]byte // padding to keep the record 8-byte aligned
}

// LinkRecord precedes LinkCount little-endian uint32 neighbor indices for
// one (node, level) adjacency list.
type LinkRecord struct {
	NodeIndex uint32
	Level     int32
	LinkCount uint32
}

// MetaRecord holds index-wide bookkeeping.
type MetaRecord struct {
	CreationTimeUnix int64
	TotalInsertions  uint64
	TotalDeletions   uint64
	Reserved         [16]byte
}
