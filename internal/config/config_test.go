package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesWorkedExamples(t *testing.T) {
	b := Default()
	assert.EqualValues(t, 0x100000, b.HeapBase)
	assert.EqualValues(t, 1<<20, b.HeapSize)
	assert.EqualValues(t, 0x200000, b.HeapLimit())
	assert.Equal(t, 8, b.MaxEntries)
	assert.Equal(t, 3, b.TaskQuota)
}

func TestParseOverridesDefaults(t *testing.T) {
	yaml := []byte(`
heap_base: 0x300000
heap_size: 4096
max_entries: 16
task_quota: 5
`)
	b, err := Parse(yaml)
	require.NoError(t, err)

	assert.EqualValues(t, 0x300000, b.HeapBase)
	assert.EqualValues(t, 4096, b.HeapSize)
	assert.EqualValues(t, 0x300000+4096, b.HeapLimit())
	assert.Equal(t, 16, b.MaxEntries)
	assert.Equal(t, 5, b.TaskQuota)
}

func TestParsePartialManifestKeepsRemainingDefaults(t *testing.T) {
	b, err := Parse([]byte(`task_quota: 10`))
	require.NoError(t, err)

	assert.Equal(t, 10, b.TaskQuota)
	assert.EqualValues(t, Default().HeapBase, b.HeapBase)
	assert.Equal(t, Default().MaxEntries, b.MaxEntries)
}

func TestParseInvalidYAMLReturnsError(t *testing.T) {
	_, err := Parse([]byte("not: [valid"))
	assert.Error(t, err)
}
