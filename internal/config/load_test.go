package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/drover-labs/drover/internal/lookup"
	"github.com/drover-labs/drover/internal/template"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	return NewLoader(template.NewGoRenderer(), lookup.NewDefaultRegistry())
}

func writePlaybook(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSimplePlay(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "site.yml", `
- name: configure webservers
  hosts: webservers
  vars:
    http_port: 80
  tasks:
    - name: ensure apache
      module: command
      args: {cmd: "apt-get install apache2"}
      notify: restart apache
  handlers:
    - name: restart apache
      module: command
      args: {cmd: "service apache2 restart"}
`)

	docs, err := newTestLoader().LoadFile(path, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	play := docs[0].Play
	assert.Equal(t, "configure webservers", play.Name)
	assert.Equal(t, "webservers", play.Hosts)
	assert.Equal(t, 80, play.Vars["http_port"])
	assert.Equal(t, dir, docs[0].BaseDir)
	require.Len(t, play.Tasks, 1)
	assert.Equal(t, []string{"restart apache"}, []string(play.Tasks[0].Notify))
}

func TestLoadRootNotSequence(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "bad.yml", "hosts: all\n")

	_, err := newTestLoader().LoadFile(path, nil)
	require.Error(t, err)
	var ce *droverrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadUnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "typo.yml", `
- hosts: all
  taskss:
    - module: ping
`)

	_, err := newTestLoader().LoadFile(path, nil)
	require.Error(t, err)
}

func TestIncludeMergesVars(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "inner.yml", `
- hosts: all
  vars:
    local_only: 1
    shared: inner
  tasks:
    - module: ping
`)
	path := writePlaybook(t, dir, "site.yml", `
- include: inner.yml
  vars:
    shared: outer
    extra: 2
`)

	docs, err := newTestLoader().LoadFile(path, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	vars := docs[0].Play.Vars
	assert.Equal(t, 1, vars["local_only"])
	// Include-scope assignments win over the included play's own vars.
	assert.Equal(t, "outer", vars["shared"])
	assert.Equal(t, 2, vars["extra"])
}

func TestIncludeWithItemsLoops(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "inner.yml", `
- hosts: all
  tasks:
    - module: ping
`)
	path := writePlaybook(t, dir, "site.yml", `
- include: inner.yml
  with_items: [one, two]
`)

	docs, err := newTestLoader().LoadFile(path, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "one", docs[0].Play.Vars["item"])
	assert.Equal(t, "two", docs[1].Play.Vars["item"])
}

func TestIncludeArgumentsTemplated(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "inner.yml", `
- hosts: all
  tasks:
    - module: ping
`)
	path := writePlaybook(t, dir, "site.yml", `
- include: inner.yml user={{ .deploy_user }}
`)

	docs, err := newTestLoader().LoadFile(path, map[string]interface{}{"deploy_user": "drover"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "drover", docs[0].Play.Vars["user"])
}

func TestIncludeDisallowedKey(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "site.yml", `
- include: inner.yml
  hosts: all
`)

	_, err := newTestLoader().LoadFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed alongside include")
}

func TestIncludeUnknownLookupPlugin(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "site.yml", `
- include: inner.yml
  with_bogus: [1]
`)

	_, err := newTestLoader().LoadFile(path, nil)
	require.Error(t, err)
	var pnf *droverrors.PluginNotFoundError
	assert.ErrorAs(t, err, &pnf)
	assert.Equal(t, "bogus", pnf.Name)
}

func TestTagsUnionWithPlayAndUniversal(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "site.yml", `
- hosts: all
  tags: [web]
  tasks:
    - module: ping
      tags: [smoke]
    - module: ping
`)

	docs, err := newTestLoader().LoadFile(path, nil)
	require.NoError(t, err)
	play := docs[0].Play
	assert.Equal(t, []string{"smoke", "web", "all"}, []string(play.Tasks[0].Tags))
	assert.Equal(t, []string{"web", "all"}, []string(play.Tasks[1].Tags))
}

func TestHandlerCannotNotify(t *testing.T) {
	dir := t.TempDir()
	path := writePlaybook(t, dir, "site.yml", `
- hosts: all
  handlers:
    - name: restart
      module: command
      args: {cmd: "true"}
      notify: another
`)

	_, err := newTestLoader().LoadFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot itself notify")
}

func TestShellSplitQuoting(t *testing.T) {
	tokens, err := shellSplit(`play.yml user="deploy team" mode='a b'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"play.yml", "user=deploy team", "mode=a b"}, tokens)

	_, err = shellSplit(`broken "quote`)
	require.Error(t, err)
}
