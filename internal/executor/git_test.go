package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/plan"
	"github.com/Iron-Ham/autopilot/internal/testutil"
)

func TestGitCommit_InitializesRepository(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"main.go": "package main\n"})

	res := New(Options{}).Execute(context.Background(), Task{Root: root, Action: plan.GitCommit{Message: "first"}})

	require.True(t, res.Success, "signature: %+v", res.Error)
	assert.Len(t, res.Commit, 40)
	assert.Equal(t, 1, testutil.CommitCount(t, root))
	assert.Equal(t, "first", strings.TrimSpace(testutil.HeadMessage(t, root)))
	assert.True(t, testutil.IsClean(t, root))
}

func TestGitCommit_ExistingRepository(t *testing.T) {
	root := testutil.SetupTestRepo(t)
	testutil.WriteFiles(t, root, map[string]string{"src/a.txt": "a", "README.md": "changed\n"})

	res := New(Options{Author: Author{Name: "bot", Email: "bot@example.com"}}).
		Execute(context.Background(), Task{Root: root, Action: plan.GitCommit{Message: "update"}})

	require.True(t, res.Success, "signature: %+v", res.Error)
	assert.Equal(t, 2, testutil.CommitCount(t, root))
	assert.True(t, testutil.IsClean(t, root))
}

func TestGitCommit_NothingToCommit(t *testing.T) {
	root := testutil.SetupTestRepo(t)

	res := New(Options{}).Execute(context.Background(), Task{Root: root, Action: plan.GitCommit{Message: "noop"}})

	require.True(t, res.Success, "signature: %+v", res.Error)
	assert.Empty(t, res.Commit)
	assert.Equal(t, "nothing to commit", res.Stdout)
	assert.Equal(t, 1, testutil.CommitCount(t, root))
}

func TestGitCommit_EmptyMessage(t *testing.T) {
	root := testutil.SetupTestRepo(t)

	res := New(Options{}).Execute(context.Background(), Task{Root: root, Action: plan.GitCommit{Message: "  "}})

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, errors.CategoryCommand, res.Error.Category)
	assert.Equal(t, EmptyCommitMessage, res.Error.Message)
}

func TestGitCommit_SubdirectoryOfRepository(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	testutil.WriteFiles(t, repo, map[string]string{
		"plan/inside.txt": "in",
		"outside.txt":     "out",
	})

	res := New(Options{}).Execute(context.Background(), Task{
		Root:   repo + "/plan",
		Action: plan.GitCommit{Message: "plan only"},
	})

	require.True(t, res.Success, "signature: %+v", res.Error)
	assert.Equal(t, 2, testutil.CommitCount(t, repo))
	assert.False(t, testutil.IsClean(t, repo), "outside.txt must stay uncommitted")
}
