// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package repo

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Oxen-AI/oxen-release-sub010/config"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestInitThenOpenFindsRepositoryFromNestedSubdir(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r2, err := Open(nested, config.Env{})
	require.NoError(t, err)
	defer r2.Close()
	require.Equal(t, root, r2.Root())
}

func TestInitTwiceFails(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = Init(root, config.Env{})
	require.Error(t, err)
	require.True(t, oxenerr.Is(err, oxenerr.InvalidInput))
}

func TestOpenTwiceFromSameProcessFailsOnTheLock(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	_, err = Open(root, config.Env{})
	require.Error(t, err)
	require.True(t, oxenerr.Is(err, oxenerr.Locked))
}

func TestAddCommitStatusLogRoundTrip(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "hello")
	require.NoError(t, r.Add("a.txt"))

	report, err := r.Status()
	require.NoError(t, err)
	require.Len(t, report.Staged, 1)
	require.Equal(t, "a.txt", report.Staged[0].Path)

	commit, err := r.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	report, err = r.Status()
	require.NoError(t, err)
	require.Empty(t, report.Staged)
	require.Empty(t, report.Unstaged)

	log, err := r.Log(objects.Hash{}, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, commit.Hash(), log[0].Hash)
}

func TestContextVariantsMatchSynchronousCounterparts(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "v1")
	require.NoError(t, r.AddContext(context.Background(), "a.txt"))
	commit, err := r.CommitContext(context.Background(), "v1", "a", "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, commit)

	write(t, root, "a.txt", "v2")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("v2", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, r.RestoreContext(context.Background(), "a.txt", commit.Hash()))
	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	write(t, root, "a.txt", "v1")
	require.NoError(t, r.AddContext(context.Background(), "a.txt"))
	_, err = r.Commit("restore v1", "a", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, r.CheckoutContext(context.Background(), "main", false))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, r.AddContext(cancelled, "a.txt"))
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Commit("empty", "a", "a@example.com")
	require.Error(t, err)
	require.True(t, oxenerr.Is(err, oxenerr.InvalidInput))
}

func TestAddAllStagesDirectoryInOnePass(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "dir/a.txt", "a")
	write(t, root, "dir/b.txt", "b")
	write(t, root, "other.txt", "c")

	require.NoError(t, r.AddAll(context.Background(), ""))

	report, err := r.Status()
	require.NoError(t, err)
	require.Len(t, report.Staged, 3)

	commit, err := r.Commit("bulk add", "a", "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, commit)
}

func TestAddAllMarksDeletedFileAsRemoved(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "hello")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.txt")))
	require.NoError(t, r.AddAll(context.Background(), ""))

	report, err := r.Status()
	require.NoError(t, err)
	require.Len(t, report.Staged, 1)
	require.Equal(t, "a.txt", report.Staged[0].Path)
}

func TestBranchAndCheckout(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "v1")
	require.NoError(t, r.Add("a.txt"))
	first, err := r.Commit("v1", "a", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, r.Branch("v1-branch"))

	write(t, root, "a.txt", "v2")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("v2", "a", "a@example.com")
	require.NoError(t, err)

	names, err := r.Branches()
	require.NoError(t, err)
	require.Contains(t, names, "v1-branch")

	require.NoError(t, r.Checkout("v1-branch", false))
	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	diffs, err := r.Diff(objects.Hash{}, first.Hash())
	require.NoError(t, err)
	require.Len(t, diffs, 1)
}

func TestCheckoutRefusesToDiscardUncommittedChangesWithoutForce(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "v1")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("v1", "a", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, r.Branch("v1-branch"))

	write(t, root, "a.txt", "v2")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("v2", "a", "a@example.com")
	require.NoError(t, err)

	write(t, root, "a.txt", "dirty, uncommitted")
	err = r.Checkout("v1-branch", false)
	require.Error(t, err)
}

func TestRestoreSinglePathWithoutMovingHead(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root, config.Env{})
	require.NoError(t, err)
	defer r.Close()

	write(t, root, "a.txt", "v1")
	require.NoError(t, r.Add("a.txt"))
	first, err := r.Commit("v1", "a", "a@example.com")
	require.NoError(t, err)

	write(t, root, "a.txt", "v2")
	require.NoError(t, r.Add("a.txt"))
	_, err = r.Commit("v2", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, r.Restore("a.txt", first.Hash()))
	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	log, err := r.Log(objects.Hash{}, 0)
	require.NoError(t, err)
	require.Len(t, log, 2) // HEAD did not move
}

func TestPushPullBetweenTwoRepositories(t *testing.T) {
	serverRoot := t.TempDir()
	server, err := Init(serverRoot, config.Env{})
	require.NoError(t, err)
	defer server.Close()

	httpSrv := httptest.NewServer(server.Serve())
	defer httpSrv.Close()

	clientRoot := t.TempDir()
	client, err := Init(clientRoot, config.Env{})
	require.NoError(t, err)
	defer client.Close()

	write(t, clientRoot, "a.txt", "hello")
	require.NoError(t, client.Add("a.txt"))
	local, err := client.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	client.Config().SetRemote("origin", httpSrv.URL+"/api/repos/x/y")
	require.NoError(t, client.cfg.Save(NewLayout(clientRoot).OxenDir))

	require.NoError(t, client.Push(context.Background(), "origin", "main", objects.Hash{}))

	otherRoot := t.TempDir()
	other, err := Init(otherRoot, config.Env{})
	require.NoError(t, err)
	defer other.Close()
	other.Config().SetRemote("origin", httpSrv.URL+"/api/repos/x/y")
	require.NoError(t, other.cfg.Save(NewLayout(otherRoot).OxenDir))

	got, err := other.Pull(context.Background(), "origin", "main")
	require.NoError(t, err)
	require.Equal(t, local.Hash(), got)
}
