// Package ioctlabi defines the fixed-layout wire structures and dispatch
// logic for the 7 core ioctl commands plus 5 ancillary commands a VexFS
// mount point's control surface exposes to userspace tools (e.g.
// cmd/vexfsctl), grounded on original_source/src/ioctl_integration.rs and
// original_source/vexfs/src/ioctl.rs. Everything here is transport-neutral:
// it has no dependency on any particular syscall or RPC framing, only on
// encoding/binary for a stable little-endian byte layout.
package ioctlabi

// Command identifies one ioctl opcode (spec §1 "ioctl ABI surface", the 7
// core operations plus 5 ancillary ones named in the original's
// VEXFS_IOCTL_* constants).
type Command uint8

const (
	CmdAddEmbedding Command = iota + 1
	CmdGetEmbedding
	CmdUpdateEmbedding
	CmdDeleteEmbedding
	CmdVectorSearch
	CmdHybridSearch
	CmdManageIndex
)

const (
	CmdGetStatus Command = iota + 0x10
	CmdBatchSearch
	CmdSetSearchParams
	CmdGetIndexInfo
	CmdValidateIndex
)

func (c Command) String() string {
	switch c {
	case CmdAddEmbedding:
		return "add_embedding"
	case CmdGetEmbedding:
		return "get_embedding"
	case CmdUpdateEmbedding:
		return "update_embedding"
	case CmdDeleteEmbedding:
		return "delete_embedding"
	case CmdVectorSearch:
		return "vector_search"
	case CmdHybridSearch:
		return "hybrid_search"
	case CmdManageIndex:
		return "manage_index"
	case CmdGetStatus:
		return "get_status"
	case CmdBatchSearch:
		return "batch_search"
	case CmdSetSearchParams:
		return "set_search_params"
	case CmdGetIndexInfo:
		return "get_index_info"
	case CmdValidateIndex:
		return "validate_index"
	default:
		return "unknown"
	}
}

// Security/validation limits carried over from the original ioctl surface.
const (
	MaxSearchResults     = 10000
	MaxVectorDimensions  = 8192
	MaxBatchSize         = 500
	MaxVectorDataSize    = 32 * 1024 * 1024
	MaxMetadataQuerySize = 4096
	MinVectorDimensions  = 1
)

// IndexOperation identifies a ManageIndex sub-operation.
type IndexOperation uint8

const (
	IndexOpCreate IndexOperation = iota
	IndexOpRebuild
	IndexOpOptimize
	IndexOpValidate
	IndexOpGetInfo
	IndexOpDelete
	IndexOpBackup
	IndexOpRestore
)

func (op IndexOperation) String() string {
	switch op {
	case IndexOpCreate:
		return "create"
	case IndexOpRebuild:
		return "rebuild"
	case IndexOpOptimize:
		return "optimize"
	case IndexOpValidate:
		return "validate"
	case IndexOpGetInfo:
		return "get_info"
	case IndexOpDelete:
		return "delete"
	case IndexOpBackup:
		return "backup"
	case IndexOpRestore:
		return "restore"
	default:
		return "unknown"
	}
}
