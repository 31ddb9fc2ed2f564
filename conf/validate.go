package conf

import "fmt"

const (
	minSliceSize = 64 * 1024
	maxSliceSize = 10 * 1024 * 1024
)

// Validate rejects a Bootstrap that would leave the slicing engine in an
// undefined state before any listener opens.
func Validate(b *Bootstrap) error {
	if b.Slicing == nil {
		return fmt.Errorf("conf: slicing section is required")
	}
	s := b.Slicing

	if s.SliceSize < minSliceSize || s.SliceSize > maxSliceSize {
		return fmt.Errorf("conf: slice_size %d out of range [%d,%d]", s.SliceSize, minSliceSize, maxSliceSize)
	}
	if s.MaxConcurrentSubrequests <= 0 {
		return fmt.Errorf("conf: max_concurrent_subrequests must be positive")
	}
	if s.EnableCache && s.CacheTTL <= 0 {
		return fmt.Errorf("conf: cache_ttl must be positive when enable_cache is set")
	}
	if s.EnableCache && s.L1Bytes <= 0 {
		return fmt.Errorf("conf: l1_bytes must be positive when enable_cache is set")
	}
	if s.EnableCache && s.L2 != nil {
		if s.L2.BlockSize <= 0 || s.L2.TotalSize <= 0 || s.L2.TotalSize%s.L2.BlockSize != 0 {
			return fmt.Errorf("conf: l2.total_size must be a positive multiple of l2.block_size")
		}
	}
	if s.Prefetch != nil && s.Prefetch.Enabled && s.Prefetch.MaxWorkers <= 0 {
		return fmt.Errorf("conf: prefetch.max_workers must be positive when prefetch is enabled")
	}
	return nil
}
