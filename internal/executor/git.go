package executor

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Iron-Ham/autopilot/internal/errors"
	"github.com/Iron-Ham/autopilot/internal/plan"
)

// EmptyCommitMessage is the signature message for a GitCommit without a
// message. Recovery recognizes it as an invalid argument.
const EmptyCommitMessage = "invalid argument: commit message is empty"

// gitCommit stages every change under the plan root and commits it. A
// repository is initialized at the root when none encloses it. Nothing to
// commit is a successful no-op.
func (r *run) gitCommit(a plan.GitCommit) {
	if strings.TrimSpace(a.Message) == "" {
		r.fail(errors.CategoryCommand, EmptyCommitMessage, ExitCodeNone)
		return
	}

	repo, err := git.PlainOpenWithOptions(r.task.Root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(r.task.Root, false)
	}
	if err != nil {
		r.failGit("open repository", err)
		return
	}

	wt, err := repo.Worktree()
	if err != nil {
		r.failGit("open worktree", err)
		return
	}

	rel, err := filepath.Rel(wt.Filesystem.Root(), r.task.Root)
	if err != nil {
		r.failGit("locate plan root", err)
		return
	}
	if rel == "." {
		err = wt.AddWithOptions(&git.AddOptions{All: true})
	} else {
		err = wt.AddWithOptions(&git.AddOptions{Path: filepath.ToSlash(rel)})
	}
	if err != nil {
		r.failGit("stage changes", err)
		return
	}

	status, err := wt.Status()
	if err != nil {
		r.failGit("read status", err)
		return
	}
	if !hasStaged(status) {
		r.result.Stdout = "nothing to commit"
		return
	}

	hash, err := wt.Commit(a.Message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.exec.author.Name,
			Email: r.exec.author.Email,
			When:  r.exec.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		r.result.Stdout = "nothing to commit"
		return
	}
	if err != nil {
		r.failGit("commit", err)
		return
	}
	r.result.Commit = hash.String()
	r.result.Stdout = "committed " + hash.String()
}

func hasStaged(status git.Status) bool {
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true
		}
	}
	return false
}

func (r *run) failGit(op string, err error) {
	category := errors.CategoryCommand
	if errors.Is(err, fs.ErrPermission) {
		category = errors.CategoryPermission
	}
	r.fail(category, "git "+op+": "+err.Error(), ExitCodeNone)
}
