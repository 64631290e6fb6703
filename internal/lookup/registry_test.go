package lookup

import (
	"os"
	"path/filepath"
	"testing"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUnknownPlugin(t *testing.T) {
	r := NewStaticRegistry()
	_, err := r.Get("nope")
	require.Error(t, err)
	var pnf *droverrors.PluginNotFoundError
	assert.ErrorAs(t, err, &pnf)
	assert.Equal(t, "nope", pnf.Name)
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewStaticRegistry()
	require.NoError(t, r.Register("items", &ItemsPlugin{}))
	err := r.Register("items", &ItemsPlugin{})
	require.Error(t, err)
}

func TestDefaultRegistryBuiltins(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"env", "fileglob", "items"}, r.List())
}

func TestItemsPluginFlattensOneLevel(t *testing.T) {
	p := &ItemsPlugin{}
	items, err := p.Run("", []interface{}{"a", []interface{}{"b", "c"}, "d"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, items)
}

func TestItemsPluginScalar(t *testing.T) {
	p := &ItemsPlugin{}
	items, err := p.Run("", "solo", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"solo"}, items)
}

func TestEnvPlugin(t *testing.T) {
	t.Setenv("DROVER_TEST_VAR", "value1")
	p := &EnvPlugin{}
	items, err := p.Run("", []interface{}{"DROVER_TEST_VAR", "DROVER_TEST_UNSET"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"value1", ""}, items)
}

func TestFileglobPluginRelativeToBasedir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.conf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.conf"), []byte("y"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.conf"), 0o755))

	p := &FileglobPlugin{}
	items, err := p.Run(dir, "*.conf", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		filepath.Join(dir, "one.conf"),
		filepath.Join(dir, "two.conf"),
	}, items)
}
