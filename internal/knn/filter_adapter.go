package knn

import (
	"context"
	"fmt"
	"time"

	"github.com/vexfs/vexfs-core/internal/filter"
	"github.com/vexfs/vexfs-core/internal/vstore"
)

// MetadataQuery is the k-NN pipeline's metadata filter (spec §4.5 "Query
// object"): size range, timestamp range, dtype bitmask, and file-extension
// string. nil/zero fields mean "no constraint on this dimension".
type MetadataQuery struct {
	SizeMin, SizeMax *uint32
	TimeMin, TimeMax *time.Time
	DTypeMask        uint32 // bit i set means DType(i) is accepted; 0 means any
	Extension        string
}

// dtypeMaskFilter is a small filter.Filter implementation for the bitmask
// membership test the generic equality/range filters don't express.
type dtypeMaskFilter struct {
	mask uint32
}

func (f *dtypeMaskFilter) Apply(ctx context.Context, entries []*filter.VectorEntry) ([]*filter.VectorEntry, error) {
	out := make([]*filter.VectorEntry, 0, len(entries))
	for _, e := range entries {
		dt, ok := e.Metadata["dtype"].(uint32)
		if !ok {
			continue
		}
		if f.mask&(1<<dt) != 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *dtypeMaskFilter) Validate() error {
	if f.mask == 0 {
		return filter.NewFilterError("dtype_mask", "dtype", "mask must have at least one bit set")
	}
	return nil
}

func (f *dtypeMaskFilter) EstimateSelectivity() float64 { return 0.3 }
func (f *dtypeMaskFilter) String() string               { return fmt.Sprintf("dtype IN mask(%#x)", f.mask) }

// build composes the query's constraints into a single filter.Filter via
// logical AND, reusing the range/equality/logical filters the metadata
// pipeline already carries (spec §4.5's filter is expressed as these
// primitives rather than a bespoke predicate tree).
func (m *MetadataQuery) build() filter.Filter {
	if m == nil {
		return nil
	}
	var filters []filter.Filter

	if m.SizeMin != nil || m.SizeMax != nil {
		var min, max interface{}
		if m.SizeMin != nil {
			min = uint64(*m.SizeMin)
		}
		if m.SizeMax != nil {
			max = uint64(*m.SizeMax)
		}
		filters = append(filters, filter.NewRangeFilter("size", min, max))
	}
	if m.TimeMin != nil || m.TimeMax != nil {
		var min, max interface{}
		if m.TimeMin != nil {
			min = *m.TimeMin
		}
		if m.TimeMax != nil {
			max = *m.TimeMax
		}
		filters = append(filters, filter.NewRangeFilter("modified_at", min, max))
	}
	if m.DTypeMask != 0 {
		filters = append(filters, &dtypeMaskFilter{mask: m.DTypeMask})
	}
	if m.Extension != "" {
		filters = append(filters, filter.NewEqualityFilter("extension", m.Extension))
	}

	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return filter.NewAndFilter(filters...)
	}
}

// entryFor adapts a storage header into the generic filter package's
// VectorEntry, populating exactly the metadata dimensions §4.5 filters on.
// extension is resolved by the caller (the core has no filename index of
// its own; it is supplied by whatever external layer owns the directory
// namespace, e.g. the FUSE dispatcher) and may be empty.
func entryFor(h *vstore.Header, extension string) *filter.VectorEntry {
	return &filter.VectorEntry{
		ID: fmt.Sprintf("%d", h.VectorID),
		Metadata: map[string]interface{}{
			"size":        uint64(h.CompressedSize),
			"modified_at": time.Unix(0, int64(h.ModifiedAt)),
			"dtype":       uint32(h.DType),
			"extension":   extension,
		},
	}
}

// matches reports whether h passes q, resolving extension via extFn when
// an extension constraint is present. A nil q matches everything.
func (q *MetadataQuery) matches(ctx context.Context, h *vstore.Header, extFn func(inode uint64) string) (bool, error) {
	f := q.build()
	if f == nil {
		return true, nil
	}
	var ext string
	if extFn != nil {
		ext = extFn(h.Inode)
	}
	out, err := f.Apply(ctx, []*filter.VectorEntry{entryFor(h, ext)})
	if err != nil {
		return false, err
	}
	return len(out) == 1, nil
}
