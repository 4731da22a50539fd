package gitsource

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{
			name:     "https url",
			url:      "https://github.com/someone/anki-backup.git",
			expected: filepath.Join("repos", "github.com", "someone", "anki-backup"),
		},
		{
			name:     "scp style url",
			url:      "git@gitlab.com:someone/collections.git",
			expected: filepath.Join("repos", "gitlab.com", "someone", "collections"),
		},
		{
			name:     "file url",
			url:      "file:///srv/git/collections.git",
			expected: filepath.Join("repos", "srv", "git", "collections"),
		},
		{
			name:    "local path",
			url:     "/home/someone/collection",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			url:     "ftp://example.com/repo.git",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected an error for %q, but got path %q", tc.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected path '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

func TestCheckoutRejectsBadURL(t *testing.T) {
	if _, err := Checkout("not a url", t.TempDir()); err == nil {
		t.Error("Expected an error for an unparseable git URL")
	}
}

// newOriginRepo creates a repository with one commit holding a collection file.
func newOriginRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() returned an unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "collection.anki2"), []byte("collection"), 0o644); err != nil {
		t.Fatalf("Failed to write collection file: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() returned an unexpected error: %v", err)
	}
	if _, err := worktree.Add("collection.anki2"); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	_, err = worktree.Commit("Add collection", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit() returned an unexpected error: %v", err)
	}
	return dir
}

func TestCheckoutClonesThenPulls(t *testing.T) {
	// the file transport shells out to git-upload-pack
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	origin := newOriginRepo(t)
	repoURL := "file://" + filepath.ToSlash(origin)
	baseDir := t.TempDir()

	first, err := Checkout(repoURL, baseDir)
	if err != nil {
		t.Fatalf("First Checkout() returned an unexpected error: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(first, "collection.anki2"))
	if err != nil {
		t.Fatalf("Expected the collection in the clone: %v", err)
	}
	if string(content) != "collection" {
		t.Errorf("Expected cloned content 'collection', but got '%s'", content)
	}

	second, err := Checkout(repoURL, baseDir)
	if err != nil {
		t.Fatalf("Second Checkout() of an up-to-date clone returned an error: %v", err)
	}
	if second != first {
		t.Errorf("Expected the same checkout path '%s', but got '%s'", first, second)
	}
}

func TestSyncRejectsNonRepository(t *testing.T) {
	dir := t.TempDir()
	if err := Sync("https://example.com/collections.git", dir); err == nil {
		t.Error("Expected an error when the checkout path is not a git repository")
	}
}
