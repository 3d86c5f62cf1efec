package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
	"github.com/viant/cascade/service/dao"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	repo := New()

	tree := processor.NewWorkflow("wf-2", "root", "r", processor.NewTask("A", "a", "echo a"))
	require.NoError(t, repo.Store(ctx, tree))
	require.NoError(t, repo.Store(ctx, processor.NewWorkflow("wf-1", "root", "r")))
	tree.Find("A").SetState(execution.StateSuccess)

	loaded, err := repo.Load(ctx, "wf-2")
	require.NoError(t, err)
	assert.True(t, loaded.Find("A").State.IsZero())
	assert.NoError(t, loaded.Validate())

	ids, err := repo.InstanceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1", "wf-2"}, ids)

	require.NoError(t, repo.Delete(ctx, "wf-2"))
	_, err = repo.Load(ctx, "wf-2")
	assert.True(t, errors.Is(err, dao.ErrNotFound))

	assert.True(t, errors.Is(repo.Store(ctx, nil), dao.ErrNilEntity))
	_, err = repo.Load(ctx, "")
	assert.True(t, errors.Is(err, dao.ErrInvalidID))
}
