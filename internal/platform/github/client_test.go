package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issueflow/internal/workflow"
)

var (
	testKeyOnce sync.Once
	testKeyPEM  []byte
	testKeyErr  error
)

func testKeyFile(t *testing.T) string {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			testKeyErr = err
			return
		}
		testKeyPEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
	})
	require.NoError(t, testKeyErr)

	path := filepath.Join(t.TempDir(), "private-key.pem")
	require.NoError(t, os.WriteFile(path, testKeyPEM, 0o600))
	return path
}

// newTestClient wires an InstallationClient against a local server. The
// token-minting route is registered here; tests add their API routes to
// mux before making calls.
func newTestClient(t *testing.T, mux *http.ServeMux, tokenCalls *int) *InstallationClient {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		if tokenCalls != nil {
			*tokenCalls++
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "ghs_test",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})

	auth, err := NewAppAuth("12345", testKeyFile(t), server.URL)
	require.NoError(t, err)
	return NewClient(auth, server.URL).ForInstallation(42).(*InstallationClient)
}

func TestInstallationTokenCachedAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	tokenCalls := 0
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issueResponse{Number: 7, Title: "t", Body: "b"})
	})
	ic := newTestClient(t, mux, &tokenCalls)

	_, err := ic.GetIssue(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)
	_, err = ic.GetIssue(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)

	assert.Equal(t, 1, tokenCalls)
}

func TestGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token ghs_test", r.Header.Get("Authorization"))
		assert.Equal(t, acceptJSON, r.Header.Get("Accept"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(issueResponse{Number: 7, Title: "Crash on empty input", Body: "Steps..."})
	})
	ic := newTestClient(t, mux, nil)

	issue, err := ic.GetIssue(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "Crash on empty input", issue.Title)
	assert.Equal(t, "Steps...", issue.Body)
}

func TestGetIssueNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	ic := newTestClient(t, mux, nil)

	_, err := ic.GetIssue(context.Background(), "acme/widgets", 7)

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "status 404")
}

func TestCreateIssueComment(t *testing.T) {
	mux := http.NewServeMux()
	var posted map[string]string
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})
	ic := newTestClient(t, mux, nil)

	err := ic.CreateIssueComment(context.Background(), "acme/widgets", 7, ":robot:")

	require.NoError(t, err)
	assert.Equal(t, ":robot:", posted["body"])
}

func TestListIssueCommentsPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var batch []commentResponse
		switch r.URL.Query().Get("page") {
		case "1":
			for i := 0; i < perPage; i++ {
				batch = append(batch, commentResponse{Body: fmt.Sprintf("comment %d", i)})
			}
		case "2":
			batch = []commentResponse{{Body: "tail 1"}, {Body: "tail 2"}}
		}
		json.NewEncoder(w).Encode(batch)
	})
	ic := newTestClient(t, mux, nil)

	comments, err := ic.ListIssueComments(context.Background(), "acme/widgets", 7)

	require.NoError(t, err)
	assert.Len(t, comments, perPage+2)
	assert.Equal(t, "tail 2", comments[len(comments)-1])
}

func TestGetPullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/11", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pullRequestResponse{
			Number: 11,
			Title:  "Fix issue #7",
			Body:   "Closes #7",
			Head:   branchRef{Ref: "fix-issue-7", SHA: "abc123"},
			Base:   branchRef{Ref: "main"},
		})
	})
	ic := newTestClient(t, mux, nil)

	pr, err := ic.GetPullRequest(context.Background(), "acme/widgets", 11)

	require.NoError(t, err)
	assert.Equal(t, "fix-issue-7", pr.HeadRef)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, "main", pr.BaseRef)
}

func TestGetPullRequestDiff(t *testing.T) {
	mux := http.NewServeMux()
	const diff = "diff --git a/main.py b/main.py\n--- a/main.py\n+++ b/main.py\n"
	mux.HandleFunc("/repos/acme/widgets/pulls/11", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, acceptDiff, r.Header.Get("Accept"))
		w.Write([]byte(diff))
	})
	ic := newTestClient(t, mux, nil)

	got, err := ic.GetPullRequestDiff(context.Background(), "acme/widgets", 11)

	require.NoError(t, err)
	assert.Equal(t, diff, got)
}

func TestGetBranchHead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/branches/fix-issue-7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"fix-issue-7","commit":{"sha":"def456"}}`))
	})
	ic := newTestClient(t, mux, nil)

	sha, err := ic.GetBranchHead(context.Background(), "acme/widgets", "fix-issue-7")

	require.NoError(t, err)
	assert.Equal(t, "def456", sha)
}

func TestCreateBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/branches/main", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"main","commit":{"sha":"abc123"}}`))
	})
	var created map[string]string
	mux.HandleFunc("/repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})
	ic := newTestClient(t, mux, nil)

	err := ic.CreateBranch(context.Background(), "acme/widgets", "fix-issue-7", "main")

	require.NoError(t, err)
	assert.Equal(t, "refs/heads/fix-issue-7", created["ref"])
	assert.Equal(t, "abc123", created["sha"])
}

func TestListFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/contents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode([]contentEntry{
			{Path: "main.py", Type: "file"},
			{Path: "docs", Type: "dir"},
			{Path: "link", Type: "symlink"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]contentEntry{
			{Path: "docs/guide.md", Type: "file"},
		})
	})
	ic := newTestClient(t, mux, nil)

	files, err := ic.ListFiles(context.Background(), "acme/widgets", "main")

	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "docs/guide.md"}, files)
}

func TestGetFileContent(t *testing.T) {
	encode := func(raw []byte) string {
		return base64.StdEncoding.EncodeToString(raw)
	}

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantContent string
		wantOK      bool
	}{
		{
			name: "utf8 file",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(contentEntry{
					Type:     "file",
					Encoding: "base64",
					// The API wraps base64 content in newlines.
					Content: encode([]byte("print(1)\n"))[:4] + "\n" + encode([]byte("print(1)\n"))[4:],
				})
			},
			wantContent: "print(1)\n",
			wantOK:      true,
		},
		{
			name: "binary file",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(contentEntry{
					Type:     "file",
					Encoding: "base64",
					Content:  encode([]byte{0xff, 0xfe, 0x00, 0x01}),
				})
			},
			wantOK: false,
		},
		{
			name: "missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			},
			wantOK: false,
		},
		{
			name: "directory",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]contentEntry{{Path: "docs/a.md", Type: "file"}})
			},
			wantOK: false,
		},
		{
			name: "too large to inline",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(contentEntry{Type: "file", Encoding: "none"})
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/acme/widgets/contents/main.py", tt.handler)
			ic := newTestClient(t, mux, nil)

			content, ok, err := ic.GetFileContent(context.Background(), "acme/widgets", "main.py", "main")

			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantContent, content)
		})
	}
}

func TestUpsertFileCreates(t *testing.T) {
	mux := http.NewServeMux()
	var put map[string]string
	mux.HandleFunc("/repos/acme/widgets/contents/new.py", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		}
	})
	ic := newTestClient(t, mux, nil)

	err := ic.UpsertFile(context.Background(), "acme/widgets", "fix-issue-7", "new.py", "print(2)", "Fix issue #7")

	require.NoError(t, err)
	assert.NotContains(t, put, "sha")
	assert.Equal(t, "fix-issue-7", put["branch"])
	assert.Equal(t, "Fix issue #7", put["message"])
	decoded, err := base64.StdEncoding.DecodeString(put["content"])
	require.NoError(t, err)
	assert.Equal(t, "print(2)", string(decoded))
}

func TestUpsertFileUpdates(t *testing.T) {
	mux := http.NewServeMux()
	var put map[string]string
	mux.HandleFunc("/repos/acme/widgets/contents/main.py", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(contentEntry{Type: "file", SHA: "abc123", Encoding: "base64"})
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
			w.Write([]byte(`{}`))
		}
	})
	ic := newTestClient(t, mux, nil)

	err := ic.UpsertFile(context.Background(), "acme/widgets", "fix-issue-7", "main.py", "print(3)", "Rework #2 for PR #11")

	require.NoError(t, err)
	assert.Equal(t, "abc123", put["sha"])
}

func TestDeleteFile(t *testing.T) {
	mux := http.NewServeMux()
	var deleted map[string]string
	mux.HandleFunc("/repos/acme/widgets/contents/old.py", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(contentEntry{Type: "file", SHA: "abc123"})
		case http.MethodDelete:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&deleted))
			w.Write([]byte(`{}`))
		}
	})
	ic := newTestClient(t, mux, nil)

	err := ic.DeleteFile(context.Background(), "acme/widgets", "fix-issue-7", "old.py", "Remove dead module")

	require.NoError(t, err)
	assert.Equal(t, "abc123", deleted["sha"])
	assert.Equal(t, "fix-issue-7", deleted["branch"])
}

func TestCombinedStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []statusEntry
		want     workflow.CIStatus
	}{
		{name: "no statuses", statuses: nil, want: workflow.CINoCI},
		{
			name:     "any failure wins",
			statuses: []statusEntry{{State: "success"}, {State: "failure"}},
			want:     workflow.CIFailure,
		},
		{
			name:     "error counts as failure",
			statuses: []statusEntry{{State: "error"}},
			want:     workflow.CIFailure,
		},
		{
			name:     "all success",
			statuses: []statusEntry{{State: "success"}, {State: "success"}},
			want:     workflow.CISuccess,
		},
		{
			name:     "pending otherwise",
			statuses: []statusEntry{{State: "success"}, {State: "pending"}},
			want:     workflow.CIPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/acme/widgets/commits/abc123/status", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(combinedStatusResponse{Statuses: tt.statuses})
			})
			ic := newTestClient(t, mux, nil)

			got, err := ic.CombinedStatus(context.Background(), "acme/widgets", "abc123")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "a/b.py", escapePath("a/b.py"))
	assert.Equal(t, "dir%20name/file%20name.py", escapePath("dir name/file name.py"))
}
