package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/store"
)

func taskFrom(t *testing.T, content string) *store.Task {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	task, err := store.Read(path)
	require.NoError(t, err)
	return task
}

func TestClassifyExplicitDomain(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\ndomain: business\n---\nbody\n")
	r := New(DefaultConfig())

	c := r.Classify(task)
	assert.Equal(t, DomainBusiness, c.Domain)
	assert.Equal(t, "explicit", c.Category)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestClassifyBusinessByKeywords(t *testing.T) {
	task := taskFrom(t, "---\ntitle: Announce Launch\nskill: email\n---\nSend an invoice to the client about the marketing campaign.\n")
	r := New(DefaultConfig())

	c := r.Classify(task)
	assert.Equal(t, DomainBusiness, c.Domain)
	assert.Equal(t, "accounting", c.Category)
	assert.False(t, c.CrossDomain)
}

func TestClassifyDefaultsWhenNoSignal(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\n---\nNothing recognizable here.\n")
	r := New(DefaultConfig())

	c := r.Classify(task)
	assert.Equal(t, DomainPersonal, c.Domain)
	assert.Equal(t, "general", c.Category)
	assert.Equal(t, 0.5, c.Confidence)
}

func TestClassifyTieBreaksOnSkillVoteAtHalfConfidence(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\nskill: email\n---\nFamily vacation planning, but also a client to handle.\n")
	r := New(DefaultConfig())

	c := r.Classify(task)
	assert.Equal(t, DomainBusiness, c.Domain, "email is a business-only skill, so its vote breaks the tie toward Business")
	assert.Equal(t, 0.5, c.Confidence, "a true tie scores winner/(winner+loser) the same as any other split, which is 0.5 here")
}

func TestClassifyCrossDomain(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\n---\nFamily vacation budget and client invoice planning.\n")
	r := New(DefaultConfig())

	c := r.Classify(task)
	assert.True(t, c.CrossDomain)
	assert.NotEqual(t, c.Domain, c.SecondaryDomain)
}

func TestRouteMovesFileAndStampsHeader(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: Invoice Q3\nskill: email\n---\nPlease send the client invoice.\n"), 0o644))
	task, err := store.Read(path)
	require.NoError(t, err)

	domainRoot := filepath.Join(t.TempDir(), "Domains")
	logPath := filepath.Join(t.TempDir(), "Logs", "domain_routing_log.md")

	var audited []map[string]interface{}
	r := New(DefaultConfig(),
		WithRoutingLog(logPath),
		WithAudit(func(_ context.Context, event map[string]interface{}) { audited = append(audited, event) }),
	)

	c, err := r.Route(context.Background(), task, domainRoot)
	require.NoError(t, err)

	assert.Equal(t, DomainBusiness, c.Domain)
	assert.FileExists(t, task.Path)
	assert.Contains(t, task.Path, string(DomainBusiness))

	reloaded, err := store.Read(task.Path)
	require.NoError(t, err)
	assert.Equal(t, "classified", reloaded.Status())
	assert.True(t, reloaded.Header.Has("routed_at"))

	assert.FileExists(t, logPath)
	require.Len(t, audited, 1)
	assert.Equal(t, "agent_decision", audited[0]["category"])
}

func TestRouteIsIdempotentOnReEntry(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: Invoice Q3\nskill: email\n---\nPlease send the client invoice.\n"), 0o644))
	task, err := store.Read(path)
	require.NoError(t, err)

	domainRoot := filepath.Join(t.TempDir(), "Domains")
	var audited []map[string]interface{}
	r := New(DefaultConfig(), WithAudit(func(_ context.Context, event map[string]interface{}) { audited = append(audited, event) }))

	_, err = r.Route(context.Background(), task, domainRoot)
	require.NoError(t, err)
	routedAt := task.Header.GetDefault("routed_at", "")
	require.NotEmpty(t, routedAt)

	c2, err := r.Route(context.Background(), task, domainRoot)
	require.NoError(t, err)
	assert.Equal(t, DomainBusiness, c2.Domain)

	reloaded, err := store.Read(task.Path)
	require.NoError(t, err)
	assert.Equal(t, routedAt, reloaded.Header.GetDefault("routed_at", ""))
	assert.Len(t, audited, 1, "second Route call must not emit another agent_decision event or re-stamp the header")
}
