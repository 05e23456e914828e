package rules_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veildb/veil"
	"github.com/veildb/veil/rules"
)

func viewerCtx(v *rules.SimpleViewer) context.Context {
	return rules.WithViewer(context.Background(), v)
}

func TestViewerContext(t *testing.T) {
	t.Parallel()

	assert.Nil(t, rules.ViewerFromContext(context.Background()))

	v := &rules.SimpleViewer{UserID: "alice", Roles: []string{"admin"}, TenantID: "acme"}
	got := rules.ViewerFromContext(viewerCtx(v))
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.GetID())
	assert.Equal(t, []string{"admin"}, got.GetRoles())
	assert.Equal(t, "acme", got.GetTenantID())
}

func TestAlwaysAllowDeny(t *testing.T) {
	t.Parallel()

	allowed, err := rules.AlwaysAllow()(context.Background(), veil.Document{})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rules.AlwaysDeny()(context.Background(), veil.Document{})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRequireViewer(t *testing.T) {
	t.Parallel()

	_, err := rules.RequireViewer()(context.Background(), veil.Document{})
	assert.ErrorIs(t, err, rules.ErrNoViewer)

	allowed, err := rules.RequireViewer()(viewerCtx(&rules.SimpleViewer{UserID: "alice"}), veil.Document{})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHasRole(t *testing.T) {
	t.Parallel()

	p := rules.HasRole("editor")

	tests := []struct {
		name    string
		ctx     context.Context
		allowed bool
	}{
		{"no viewer", context.Background(), false},
		{"no roles", viewerCtx(&rules.SimpleViewer{UserID: "a"}), false},
		{"other role", viewerCtx(&rules.SimpleViewer{UserID: "a", Roles: []string{"reader"}}), false},
		{"has role", viewerCtx(&rules.SimpleViewer{UserID: "a", Roles: []string{"reader", "editor"}}), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			allowed, err := p(tt.ctx, veil.Document{})
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestOwnerField(t *testing.T) {
	t.Parallel()

	p := rules.OwnerField("owner")
	alice := viewerCtx(&rules.SimpleViewer{UserID: "alice"})

	tests := []struct {
		name    string
		ctx     context.Context
		doc     veil.Document
		allowed bool
	}{
		{"owned", alice, veil.Document{"owner": "alice"}, true},
		{"not owned", alice, veil.Document{"owner": "bob"}, false},
		{"field missing", alice, veil.Document{}, false},
		{"field not a string", alice, veil.Document{"owner": int64(1)}, false},
		{"no viewer", context.Background(), veil.Document{"owner": "alice"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			allowed, err := p(tt.ctx, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestTenantField(t *testing.T) {
	t.Parallel()

	p := rules.TenantField("tenant")
	acme := viewerCtx(&rules.SimpleViewer{UserID: "alice", TenantID: "acme"})
	noTenant := viewerCtx(&rules.SimpleViewer{UserID: "alice"})

	tests := []struct {
		name    string
		ctx     context.Context
		doc     veil.Document
		allowed bool
	}{
		{"same tenant", acme, veil.Document{"tenant": "acme"}, true},
		{"other tenant", acme, veil.Document{"tenant": "globex"}, false},
		{"field missing", acme, veil.Document{}, false},
		{"viewer without tenant", noTenant, veil.Document{"tenant": "acme"}, false},
		{"no viewer", context.Background(), veil.Document{"tenant": "acme"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			allowed, err := p(tt.ctx, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestOnOperation(t *testing.T) {
	t.Parallel()

	p := rules.OnOperation(veil.OpDelete, rules.AlwaysDeny())

	t.Run("matching operation applies", func(t *testing.T) {
		t.Parallel()
		allowed, err := p(veil.WithOp(context.Background(), veil.OpDelete), veil.Document{})
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("other operation allows", func(t *testing.T) {
		t.Parallel()
		allowed, err := p(veil.WithOp(context.Background(), veil.OpPatch), veil.Document{})
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("no operation allows", func(t *testing.T) {
		t.Parallel()
		allowed, err := p(context.Background(), veil.Document{})
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestAnd(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fail := func(context.Context, veil.Document) (bool, error) { return false, boom }
	ctx := context.Background()

	allowed, err := rules.And(rules.AlwaysAllow(), rules.AlwaysAllow())(ctx, veil.Document{})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rules.And(rules.AlwaysAllow(), rules.AlwaysDeny())(ctx, veil.Document{})
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = rules.And(rules.AlwaysAllow(), fail)(ctx, veil.Document{})
	assert.ErrorIs(t, err, boom)

	// Short-circuits: the failing predicate after a denial never runs.
	_, err = rules.And(rules.AlwaysDeny(), fail)(ctx, veil.Document{})
	assert.NoError(t, err)

	allowed, err = rules.And()(ctx, veil.Document{})
	require.NoError(t, err)
	assert.True(t, allowed, "empty conjunction allows")
}

func TestOr(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fail := func(context.Context, veil.Document) (bool, error) { return false, boom }
	ctx := context.Background()

	allowed, err := rules.Or(rules.AlwaysDeny(), rules.AlwaysAllow())(ctx, veil.Document{})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rules.Or(rules.AlwaysDeny(), rules.AlwaysDeny())(ctx, veil.Document{})
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = rules.Or(rules.AlwaysDeny(), fail)(ctx, veil.Document{})
	assert.ErrorIs(t, err, boom)

	// Short-circuits on the first allowance.
	_, err = rules.Or(rules.AlwaysAllow(), fail)(ctx, veil.Document{})
	assert.NoError(t, err)

	allowed, err = rules.Or()(ctx, veil.Document{})
	require.NoError(t, err)
	assert.False(t, allowed, "empty disjunction denies")
}
