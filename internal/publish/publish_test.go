package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/git"
	helpers "git.home.luguber.info/inful/pagerefresh/internal/testutil/testutils"
)

var testSig = git.Signature{Name: "pagerefresh", Email: "pagerefresh@example.com"}

func siteDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return dir
}

func TestExcluder(t *testing.T) {
	ex := newExcluder([]string{"*.py", "requirements.txt", "drafts/"})
	assert.True(t, ex.excluded(".git"))
	assert.True(t, ex.excluded("sub/.git"))
	assert.True(t, ex.excluded("update_html.py"))
	assert.True(t, ex.excluded("tools/gen.py"))
	assert.True(t, ex.excluded("requirements.txt"))
	assert.True(t, ex.excluded("drafts"))
	assert.False(t, ex.excluded("index.html"))
	assert.False(t, ex.excluded("assets/site.css"))
}

func TestGitBranchPublisher_CreatesAndUpdatesBranch(t *testing.T) {
	remote := helpers.NewBareRemote(t, "main", map[string]string{"index.html": "v1"})
	src := siteDir(t, map[string]string{
		"index.html":      "v1",
		"update_html.py":  "print()",
		"assets/site.css": "body{}",
		".git/HEAD":       "ref: refs/heads/main",
	})
	p := NewGitBranchPublisher(remote, "gh-pages", testSig, nil).WithExcludes([]string{"*.py"})

	pub, err := p.Publish(context.Background(), Request{SourceDir: src, ScratchDir: t.TempDir(), SourceCommit: "abc123"})
	require.NoError(t, err)
	assert.True(t, pub.Changed)
	assert.Equal(t, 2, pub.Files)
	assert.Equal(t, "v1", helpers.RemoteFile(t, remote, "gh-pages", "index.html"))
	assert.Equal(t, "body{}", helpers.RemoteFile(t, remote, "gh-pages", "assets/site.css"))
	assert.Equal(t, "", helpers.RemoteFile(t, remote, "gh-pages", ".nojekyll"))

	log := helpers.RemoteLog(t, remote, "gh-pages")
	require.Len(t, log, 1)
	assert.Equal(t, "deploy: abc123", log[0].Message)
	assert.NotContains(t, log[0].Files, "update_html.py")

	// Same tree again: nothing to commit.
	pub, err = p.Publish(context.Background(), Request{SourceDir: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, pub.Changed)
	assert.Len(t, helpers.RemoteLog(t, remote, "gh-pages"), 1)

	// Removed files disappear from the pages branch.
	require.NoError(t, os.RemoveAll(filepath.Join(src, "assets")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("v2"), 0o600))
	pub, err = p.Publish(context.Background(), Request{SourceDir: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, pub.Changed)
	log = helpers.RemoteLog(t, remote, "gh-pages")
	require.Len(t, log, 2)
	assert.ElementsMatch(t, []string{"assets/site.css", "index.html"}, log[0].Files)
}

func TestGitBranchPublisher_UnreachableRemote(t *testing.T) {
	p := NewGitBranchPublisher(filepath.Join(t.TempDir(), "missing.git"), "gh-pages", testSig, nil)
	_, err := p.Publish(context.Background(), Request{SourceDir: siteDir(t, map[string]string{"index.html": "x"}), ScratchDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPublish))
}

func TestDirectoryPublisher_MirrorsTree(t *testing.T) {
	target := filepath.Join(t.TempDir(), "site")
	src := siteDir(t, map[string]string{"index.html": "v1", "old.html": "old", ".git/config": "x"})
	p := NewDirectoryPublisher(target, nil)

	pub, err := p.Publish(context.Background(), Request{SourceDir: src})
	require.NoError(t, err)
	assert.Equal(t, 2, pub.Files)
	helpers.NewFileAssertions(t, target).
		AssertFileEquals("index.html", "v1").
		AssertFileExists("old.html").
		AssertFileNotExists(".git/config")

	require.NoError(t, os.Remove(filepath.Join(src, "old.html")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("v2"), 0o600))
	_, err = p.Publish(context.Background(), Request{SourceDir: src})
	require.NoError(t, err)
	helpers.NewFileAssertions(t, target).
		AssertFileEquals("index.html", "v2").
		AssertFileNotExists("old.html").
		AssertTree("index.html")

	_, err = os.Stat(target + ".previous")
	assert.True(t, os.IsNotExist(err))
}

func TestDirectoryPublisher_MissingSource(t *testing.T) {
	p := NewDirectoryPublisher(filepath.Join(t.TempDir(), "site"), nil)
	_, err := p.Publish(context.Background(), Request{SourceDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPublish))
}

func TestPagesBuildRequester_Throttles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/site/pages/builds", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://api.github.com/repos/acme/site/pages/builds/latest","status":"queued"}`))
	}))
	defer srv.Close()

	r, err := NewPagesBuildRequester(config.GitHubPagesConfig{
		Owner: "acme", Repo: "site", APIURL: srv.URL, MinInterval: "1h",
	}, "s3cret")
	require.NoError(t, err)

	requested, err := r.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, requested)

	requested, err = r.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, requested, "second request inside the interval must be skipped")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPagesBuildRequester_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	r, err := NewPagesBuildRequester(config.GitHubPagesConfig{Owner: "acme", Repo: "site", APIURL: srv.URL}, "bad")
	require.NoError(t, err)
	_, err = r.Request(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPublish))
}

func TestNew_SelectsPublisher(t *testing.T) {
	commit := config.CommitConfig{AuthorName: "a", AuthorEmail: "a@example.com"}

	p, err := New(config.PublishConfig{Kind: config.PublishNone}, commit, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = New(config.PublishConfig{Kind: config.PublishDirectory, Target: t.TempDir()}, commit, nil)
	require.NoError(t, err)
	assert.IsType(t, &DirectoryPublisher{}, p)

	p, err = New(config.PublishConfig{Kind: config.PublishGitBranch, Remote: "file:///x", Branch: "gh-pages"}, commit, nil)
	require.NoError(t, err)
	assert.IsType(t, &GitBranchPublisher{}, p)

	_, err = New(config.PublishConfig{Kind: "ftp"}, commit, nil)
	require.Error(t, err)
}
