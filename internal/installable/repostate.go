package installable

import (
	"os"

	git "github.com/go-git/go-git/v5"
)

// RepoState describes the version-control state of a local flake reference.
// A dirty worktree is the usual cause of "built something other than what is
// committed", so it is surfaced before the build starts.
type RepoState struct {
	Branch string
	Dirty  bool
}

// LocalRepoState inspects the reference when it points at a local git
// worktree. The second return value is false for remote references, non-git
// directories, or any inspection failure; repo state is advisory only.
func LocalRepoState(reference string) (RepoState, bool) {
	info, err := os.Stat(reference)
	if err != nil || !info.IsDir() {
		return RepoState{}, false
	}

	repo, err := git.PlainOpenWithOptions(reference, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return RepoState{}, false
	}

	state := RepoState{}
	if head, err := repo.Head(); err == nil {
		state.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return state, true
	}
	status, err := worktree.Status()
	if err != nil {
		return state, true
	}
	state.Dirty = !status.IsClean()

	return state, true
}
