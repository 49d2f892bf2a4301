package multipart

import "github.com/objectfs/cloudpath/pkg/types"

// SliceParts partitions size bytes into block-sized part ranges. An undersized trailing
// remainder merges into the previous part when the merge fits partMax; otherwise the merged
// range is split in half. A partMax of zero or less is unlimited.
func SliceParts(size, block, partMax int64) []types.Range {
	ranges := types.SplitRanges(size, block)
	n := len(ranges)
	if n < 2 || ranges[n-1].Size >= block {
		return ranges
	}

	prev, last := ranges[n-2], ranges[n-1]
	merged := prev.Size + last.Size
	if partMax <= 0 || merged <= partMax {
		ranges[n-2] = types.Range{Offset: prev.Offset, Size: merged}
		return ranges[:n-1]
	}

	half := merged / 2
	ranges[n-2] = types.Range{Offset: prev.Offset, Size: half}
	ranges[n-1] = types.Range{Offset: prev.Offset + half, Size: merged - half}
	return ranges
}
