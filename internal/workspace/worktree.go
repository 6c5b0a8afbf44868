package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Status summarizes the working tree of one session worktree.
type Status struct {
	IsClean        bool
	ModifiedFiles  []string
	UntrackedFiles []string
	StagedFiles    []string
}

// Manager creates and operates per-session git worktrees under a base
// directory, one directory per session id.
type Manager struct {
	baseDir string
}

// NewManager ensures baseDir exists and returns a manager rooted there.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktrees directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// Path returns where the worktree for sessionID lives, whether or not it
// exists yet.
func (m *Manager) Path(sessionID string) string {
	return filepath.Join(m.baseDir, sessionID)
}

var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func validBranchName(branch string) bool {
	if branch == "" || !branchNamePattern.MatchString(branch) {
		return false
	}
	return !strings.Contains(branch, "..") && !strings.HasSuffix(branch, ".") && !strings.Contains(branch, "~")
}

// Create clones repoPath into the session's worktree directory and checks
// out a fresh branch named after the session.
func (m *Manager) Create(repoPath, sessionID, branch string) (string, error) {
	if branch == "" {
		return "", errors.New("branch name cannot be empty")
	}
	if !validBranchName(branch) {
		return "", fmt.Errorf("invalid branch name %q", branch)
	}

	worktreePath := m.Path(sessionID)
	slog.Debug("creating worktree", "repo_path", repoPath, "worktree_path", worktreePath, "branch", branch)

	repo, err := git.PlainClone(worktreePath, false, &git.CloneOptions{URL: repoPath})
	if err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", repoPath, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	slog.Debug("worktree created", "worktree_path", worktreePath, "branch", branch)
	return worktreePath, nil
}

// Remove deletes a session worktree directory. Missing directories are not
// an error.
func (m *Manager) Remove(sessionID string) error {
	worktreePath := m.Path(sessionID)
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		slog.Debug("worktree does not exist, nothing to remove", "worktree_path", worktreePath)
		return nil
	}
	if err := os.RemoveAll(worktreePath); err != nil {
		return fmt.Errorf("failed to remove worktree %s: %w", worktreePath, err)
	}
	slog.Debug("worktree removed", "worktree_path", worktreePath)
	return nil
}

// GetStatus reports the working tree status of a session worktree.
func (m *Manager) GetStatus(worktreePath string) (*Status, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	out := &Status{
		IsClean:        status.IsClean(),
		ModifiedFiles:  make([]string, 0),
		UntrackedFiles: make([]string, 0),
		StagedFiles:    make([]string, 0),
	}
	for file, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			out.StagedFiles = append(out.StagedFiles, file)
		}
		if fs.Worktree == git.Modified || fs.Worktree == git.Renamed {
			out.ModifiedFiles = append(out.ModifiedFiles, file)
		}
		if fs.Worktree == git.Untracked {
			out.UntrackedFiles = append(out.UntrackedFiles, file)
		}
	}

	slog.Debug("git status retrieved", "worktree_path", worktreePath, "is_clean", out.IsClean,
		"modified_count", len(out.ModifiedFiles), "untracked_count", len(out.UntrackedFiles),
		"staged_count", len(out.StagedFiles))
	return out, nil
}

// StageAll stages every change in the worktree, equivalent to git add .
func (m *Manager) StageAll(worktreePath string) error {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Add("."); err != nil {
		return fmt.Errorf("failed to add changes: %w", err)
	}
	return nil
}

// Commit creates a commit with the given message and returns its hash.
func (m *Manager) Commit(worktreePath, message string) (string, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	commit, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "agentdeck",
			Email: "agentdeck@localhost",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}

	hash := commit.String()
	slog.Debug("commit created", "worktree_path", worktreePath, "commit_hash", hash)
	return hash, nil
}

// CurrentBranch returns the checked-out branch, or a short hash when HEAD
// is detached.
func (m *Manager) CurrentBranch(worktreePath string) (string, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD reference: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return head.Hash().String()[:8], nil
}

// Head returns the full hash of the current HEAD commit.
func (m *Manager) Head(worktreePath string) (string, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD reference: %w", err)
	}
	return head.Hash().String(), nil
}

// Push pushes the branch to origin. Already-up-to-date is not an error.
func (m *Manager) Push(worktreePath, branch string) error {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", worktreePath, err)
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("failed to get origin remote: %w", err)
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = remote.Push(&git.PushOptions{RefSpecs: []gitconfig.RefSpec{refSpec}})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			slog.Debug("repository already up to date", "worktree_path", worktreePath, "branch", branch)
			return nil
		}
		return fmt.Errorf("failed to push to remote: %w", err)
	}
	return nil
}

// Diff shells out for the unified diff; go-git has no compact diff
// rendering for an unstaged tree.
func (m *Manager) Diff(worktreePath string) (string, error) {
	cmd := exec.Command("git", "diff", "--minimal", "--ignore-all-space", "--diff-filter=ACMR")
	cmd.Dir = worktreePath

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to execute git diff: %w", err)
	}

	diff := strings.TrimSpace(string(output))
	if diff == "" {
		return "No changes to show.", nil
	}
	return diff, nil
}
