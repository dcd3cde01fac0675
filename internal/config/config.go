// Package config loads the four implementation-defined boot constants
// every kernel build must document: HEAP_BASE, HEAP_LIMIT,
// KHEAP_MAX_ENTRIES, and TASK_QUOTA. A real freestanding kernel bakes
// these in at compile time per target board; this module's host-side
// tooling (cmd/kmonitor) instead reads them from a small YAML boot
// manifest, the way tinygo itself drives per-target parameters from
// declarative config rather than scattered constants (compileopts reads
// target JSON; this is the same idea rendered in YAML, via
// gopkg.in/yaml.v2, a direct tinygo dependency).
package config

import "gopkg.in/yaml.v2"

// Boot holds the four boot-time kernel constants.
type Boot struct {
	// HeapBase is the first address the heap may hand out.
	HeapBase uintptr `yaml:"heap_base"`
	// HeapSize is HEAP_LIMIT - HEAP_BASE, the heap's total capacity in bytes.
	HeapSize uintptr `yaml:"heap_size"`
	// MaxEntries is KHEAP_MAX_ENTRIES, the number of descriptor slots.
	MaxEntries int `yaml:"max_entries"`
	// TaskQuota is TASK_QUOTA, timer ticks per scheduling slice.
	TaskQuota int `yaml:"task_quota"`
}

// HeapLimit returns one past the last usable heap address.
func (b Boot) HeapLimit() uintptr {
	return b.HeapBase + b.HeapSize
}

// Default returns a conservative boot configuration: HEAP_BASE =
// 0x100000, a 1 MiB heap, 8 descriptor slots, and a 3-tick quota.
func Default() Boot {
	return Boot{
		HeapBase:   0x100000,
		HeapSize:   1 << 20,
		MaxEntries: 8,
		TaskQuota:  3,
	}
}

// Parse decodes a YAML boot manifest. Fields absent from data keep
// Default()'s values.
func Parse(data []byte) (Boot, error) {
	b := Default()
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Boot{}, err
	}
	return b, nil
}
