package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInventory() *MemoryInventory {
	return NewMemoryInventory(
		[]string{"web1", "web2", "db1", "db2", "cache1"},
		map[string][]string{
			"webservers": {"web1", "web2"},
			"dbservers":  {"db1", "db2"},
		},
	)
}

func TestGroupOnlyHostsJoinUniverseDeterministically(t *testing.T) {
	groups := map[string][]string{
		"webservers": {"web1", "web2"},
		"dbservers":  {"db1"},
		"cache":      {"cache1"},
	}
	want := NewMemoryInventory(nil, groups).ListHosts("all")
	assert.Equal(t, []string{"cache1", "db1", "web1", "web2"}, want)
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, NewMemoryInventory(nil, groups).ListHosts("all"))
	}
}

func TestListHostsAll(t *testing.T) {
	inv := newTestInventory()
	assert.Equal(t, []string{"web1", "web2", "db1", "db2", "cache1"}, inv.ListHosts("all"))
	assert.Equal(t, inv.ListHosts("all"), inv.ListHosts("*"))
}

func TestListHostsGroupAndGlob(t *testing.T) {
	inv := newTestInventory()
	assert.Equal(t, []string{"web1", "web2"}, inv.ListHosts("webservers"))
	assert.Equal(t, []string{"db1", "db2"}, inv.ListHosts("db*"))
	assert.Equal(t, []string{"cache1"}, inv.ListHosts("cache1"))
}

func TestListHostsUnionPreservesOrder(t *testing.T) {
	inv := newTestInventory()
	// Union order follows inventory order, not pattern order.
	assert.Equal(t, []string{"web1", "web2", "db1", "db2"}, inv.ListHosts("dbservers:webservers"))
	assert.Equal(t, []string{"web1", "web2", "db1", "db2"}, inv.ListHosts("dbservers;webservers"))
}

func TestListHostsNoMatch(t *testing.T) {
	inv := newTestInventory()
	assert.Empty(t, inv.ListHosts("mailservers"))
}

func TestRestrictionStacks(t *testing.T) {
	inv := newTestInventory()

	inv.RestrictTo([]string{"web1", "db1"})
	assert.Equal(t, []string{"web1", "db1"}, inv.ListHosts("all"))
	assert.Equal(t, []string{"web1"}, inv.ListHosts("webservers"))

	inv.AlsoRestrictTo([]string{"web1"})
	assert.Equal(t, []string{"web1"}, inv.ListHosts("all"))

	inv.LiftAlsoRestriction()
	assert.Equal(t, []string{"web1", "db1"}, inv.ListHosts("all"))

	inv.LiftRestriction()
	assert.Len(t, inv.ListHosts("all"), 5)
}

func TestNestedRestrictionsShadow(t *testing.T) {
	inv := newTestInventory()
	inv.RestrictTo([]string{"web1", "web2", "db1"})
	inv.RestrictTo([]string{"web2"})
	// Only the innermost frame applies.
	assert.Equal(t, []string{"web2"}, inv.ListHosts("all"))
	inv.LiftRestriction()
	assert.Equal(t, []string{"web1", "web2", "db1"}, inv.ListHosts("all"))
	inv.LiftRestriction()
}

func TestUnmatchedLiftPanics(t *testing.T) {
	inv := newTestInventory()
	assert.Panics(t, func() { inv.LiftRestriction() })
	assert.Panics(t, func() { inv.LiftAlsoRestriction() })
}

func TestSubsetNarrowsUniverse(t *testing.T) {
	inv := newTestInventory()
	inv.Subset("webservers")
	assert.Equal(t, []string{"web1", "web2"}, inv.ListHosts("all"))
	assert.Empty(t, inv.ListHosts("dbservers"))
}

func TestLoadHostList(t *testing.T) {
	content := `# comment
cache1

[webservers]
web1
web2  # inline comment

[dbservers]
db1
db2
`
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	inv, err := LoadHostList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache1", "web1", "web2", "db1", "db2"}, inv.ListHosts("all"))
	assert.Equal(t, []string{"web1", "web2"}, inv.ListHosts("webservers"))
}

func TestLoadHostListMalformedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("[webservers\nweb1\n"), 0o644))

	_, err := LoadHostList(path)
	require.Error(t, err)
}

func TestLoadHostListReservedGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("[all]\nweb1\n"), 0o644))

	_, err := LoadHostList(path)
	require.Error(t, err)
}
