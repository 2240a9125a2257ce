package playbook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaybook(t *testing.T) {
	pb, err := NewPlaybook("global")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, pb.SchemaVersion)
	assert.Empty(t, pb.Bullets)
	assert.False(t, pb.Metadata.CreatedAt.IsZero())

	_, err = NewPlaybook("")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestPlaybookValidate(t *testing.T) {
	pb, err := NewPlaybook("global")
	require.NoError(t, err)

	t.Run("wrong schema version", func(t *testing.T) {
		bad := *pb
		bad.SchemaVersion = 99
		assert.ErrorIs(t, bad.Validate(), ErrSchemaVersion)
	})

	t.Run("duplicate bullet ids", func(t *testing.T) {
		b := mustBullet(t, "some rule content", "")
		dup := *b
		bad := *pb
		bad.Bullets = []*Bullet{b, &dup}
		assert.ErrorIs(t, bad.Validate(), ErrDuplicateBullet)
	})

	t.Run("invalid bullet surfaces with its id", func(t *testing.T) {
		b := mustBullet(t, "some rule content", "")
		b.HelpfulCount = 3
		bad := *pb
		bad.Bullets = []*Bullet{b}
		err := bad.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCounterMismatch)
		assert.Contains(t, err.Error(), b.ID)
	})
}

func TestAddAndRemoveBullet(t *testing.T) {
	pb, err := NewPlaybook("global")
	require.NoError(t, err)

	b := mustBullet(t, "some rule content", "")
	require.NoError(t, pb.AddBullet(b))
	assert.ErrorIs(t, pb.AddBullet(b), ErrDuplicateBullet)

	assert.Same(t, b, pb.FindBullet(b.ID))
	assert.Nil(t, pb.FindBullet("blt-missing"))

	require.NoError(t, pb.RemoveBullet(b.ID))
	assert.ErrorIs(t, pb.RemoveBullet(b.ID), ErrBulletNotFound)
}

func TestActiveBullets(t *testing.T) {
	pb, err := NewPlaybook("global")
	require.NoError(t, err)

	draft := mustBullet(t, "draft rule content", "")
	active := mustBullet(t, "active rule content", "")
	active.State = StateActive
	deprecated := mustBullet(t, "deprecated rule content", "")
	deprecated.State = StateActive
	deprecated.Deprecate("obsolete", "")

	require.NoError(t, pb.AddBullet(draft))
	require.NoError(t, pb.AddBullet(active))
	require.NoError(t, pb.AddBullet(deprecated))

	got := pb.ActiveBullets()
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestContextViewMergesPlaybooks(t *testing.T) {
	global, err := NewPlaybook("global")
	require.NoError(t, err)
	project, err := NewPlaybook("my-repo")
	require.NoError(t, err)

	g := mustBullet(t, "global rule content", "style")
	g.State = StateActive
	p := mustBullet(t, "project rule content", "style")
	p.State = StateActive
	require.NoError(t, global.AddBullet(g))
	require.NoError(t, project.AddBullet(p))

	view := NewContextView(global, project, nil)
	assert.Len(t, view.ActiveBullets(), 2)
	assert.Len(t, view.ActiveBulletsInCategory("style"), 2)
	assert.Empty(t, view.ActiveBulletsInCategory("testing"))
	assert.Same(t, p, view.FindBullet(p.ID))
	assert.Nil(t, view.FindBullet("blt-missing"))
}

func TestPlaybookJSONRoundTrip(t *testing.T) {
	pb, err := NewPlaybook("my-repo")
	require.NoError(t, err)
	pb.Description = "rules for my-repo"

	b := mustBullet(t, "run gofmt before committing changes", "workflow")
	b.State = StateActive
	require.NoError(t, b.AddFeedback(FeedbackEvent{Type: FeedbackHelpful, Reason: "clean diffs"}))
	require.NoError(t, b.AddFeedback(FeedbackEvent{Type: FeedbackHarmful, SessionPath: "/sessions/a.md"}))
	require.NoError(t, pb.AddBullet(b))
	pb.DeprecatedPatterns = []string{"always force-push to main"}

	data, err := json.Marshal(pb)
	require.NoError(t, err)

	var decoded Playbook
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())
	assert.Equal(t, *pb, decoded)
}
