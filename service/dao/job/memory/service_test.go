package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/service/dao"
)

func newSpec(id string, status job.Status) *job.Spec {
	return &job.Spec{
		Job:   &job.Job{ID: id, Load: 1, Status: status, JobInstance: "echo " + id},
		Input: metadata.Metadata{"Filename": {id + ".dat"}},
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	repo, err := New()
	require.NoError(t, err)

	require.NoError(t, repo.Add(ctx, newSpec("job-2", job.StatusQueued)))
	require.NoError(t, repo.Add(ctx, newSpec("job-1", job.StatusExecuting)))
	require.NoError(t, repo.Add(ctx, newSpec("job-3", job.StatusSuccess)))

	spec, err := repo.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusExecuting, spec.Job.Status)
	assert.Equal(t, "job-1.dat", spec.Input.Get("Filename"))

	spec.Job.Status = job.StatusFailure
	spec.Job.Error = "exit 1"
	require.NoError(t, repo.Update(ctx, spec))
	updated, err := repo.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, updated.Job.Status)
	assert.Equal(t, "exit 1", updated.Job.Error)

	testCases := []struct {
		name     string
		statuses []job.Status
		expect   []string
	}{
		{name: "all", expect: []string{"job-1", "job-2", "job-3"}},
		{name: "queued", statuses: []job.Status{job.StatusQueued}, expect: []string{"job-2"}},
		{name: "terminal", statuses: []job.Status{job.StatusSuccess, job.StatusFailure}, expect: []string{"job-1", "job-3"}},
		{name: "none", statuses: []job.Status{job.StatusKilled}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			specs, err := repo.List(ctx, tc.statuses...)
			require.NoError(t, err)
			var ids []string
			for _, spec := range specs {
				ids = append(ids, spec.ID())
			}
			assert.Equal(t, tc.expect, ids)
		})
	}

	assert.True(t, errors.Is(repo.Update(ctx, newSpec("missing", job.StatusQueued)), dao.ErrNotFound))
	require.NoError(t, repo.Delete(ctx, "job-2"))
	_, err = repo.Job(ctx, "job-2")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, "job-2"), dao.ErrNotFound))
	assert.True(t, errors.Is(repo.Add(ctx, nil), dao.ErrNilEntity))
	assert.True(t, errors.Is(repo.Add(ctx, newSpec("", job.StatusQueued)), dao.ErrInvalidID))
}
