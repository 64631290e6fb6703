package engine

import (
	"context"
	"testing"

	"github.com/drover-labs/drover/pkg/drover/v1"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taggedPlaybook = `
- hosts: all
  gather_facts: false
  tags: [web]
  tasks:
    - name: deploy app
      module: deploy
      tags: [release]
    - name: smoke check
      module: ping
- hosts: all
  gather_facts: false
  tasks:
    - name: rotate db credentials
      module: rotate
      tags: [db]
`

func TestTagFilterRunsOnlyMatchingTasks(t *testing.T) {
	eng, exec, _ := newTestEngine(t, taggedPlaybook, []string{"h1"},
		v1.WithOnlyTags([]string{"db"}))

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, exec.callsFor("deploy"))
	assert.Empty(t, exec.callsFor("ping"))
	require.Len(t, exec.callsFor("rotate"), 1)
}

func TestTagFilterPlayTagCoversItsTasks(t *testing.T) {
	eng, exec, _ := newTestEngine(t, taggedPlaybook, []string{"h1"},
		v1.WithOnlyTags([]string{"web"}))

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	// The play-level tag attaches to both of the first play's tasks.
	assert.Len(t, exec.callsFor("deploy"), 1)
	assert.Len(t, exec.callsFor("ping"), 1)
	assert.Empty(t, exec.callsFor("rotate"))
}

func TestTagFilterDefaultAllMatchesEverything(t *testing.T) {
	eng, exec, _ := newTestEngine(t, taggedPlaybook, []string{"h1"})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, exec.callsFor("deploy"), 1)
	assert.Len(t, exec.callsFor("ping"), 1)
	assert.Len(t, exec.callsFor("rotate"), 1)
}

func TestUnknownTagAbortsBeforeAnyDispatch(t *testing.T) {
	eng, exec, _ := newTestEngine(t, taggedPlaybook, []string{"h1"},
		v1.WithOnlyTags([]string{"web", "bogus", "alsobogus"}))

	_, err := eng.Run(context.Background())
	require.Error(t, err)

	var tagErr *droverrors.UnknownTagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, []string{"alsobogus", "bogus"}, tagErr.Unknown)
	assert.Contains(t, tagErr.Known, "db")
	assert.Contains(t, tagErr.Known, "release")
	assert.NotContains(t, tagErr.Known, "web", "selected tags are not suggested back")
	assert.NotContains(t, tagErr.Known, "all", "the implicit tag is not suggested back")

	assert.Empty(t, exec.calls, "tag validation happens before any play runs")
}
