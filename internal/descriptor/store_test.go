package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustModule(t *testing.T, spec ModuleSpec) *Module {
	t.Helper()
	m, err := NewModule(spec)
	require.NoError(t, err)
	return m
}

func TestNewTarget(t *testing.T) {
	t.Run("valid target keeps entry order", func(t *testing.T) {
		tgt, err := NewTarget("AfterCurfew", Executable, []string{"Game", "Audio"})
		require.NoError(t, err)
		assert.Equal(t, "AfterCurfew", tgt.Name())
		assert.Equal(t, Executable, tgt.Kind())
		assert.Equal(t, []string{"Game", "Audio"}, tgt.EntryModules())
	})

	t.Run("entry modules are copied", func(t *testing.T) {
		entries := []string{"Game"}
		tgt, err := NewTarget("T", Executable, entries)
		require.NoError(t, err)
		entries[0] = "Mutated"
		got := tgt.EntryModules()
		got[0] = "AlsoMutated"
		assert.Equal(t, []string{"Game"}, tgt.EntryModules())
	})

	testCases := []struct {
		name    string
		target  string
		kind    Kind
		entries []string
		reason  string
	}{
		{name: "missing name", target: " ", kind: Executable, entries: []string{"A"}, reason: "name is required"},
		{name: "missing kind", target: "T", entries: []string{"A"}, reason: "kind is required"},
		{name: "no entry modules", target: "T", kind: Executable, reason: "at least one module"},
		{name: "duplicate entry", target: "T", kind: SharedLibrary, entries: []string{"A", "A"}, reason: `"A" more than once`},
		{name: "blank entry", target: "T", kind: PluginHosted, entries: []string{"A", ""}, reason: "empty name"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTarget(tc.target, tc.kind, tc.entries)
			var malformedErr *MalformedDescriptorError
			require.ErrorAs(t, err, &malformedErr)
			assert.Equal(t, "target", malformedErr.Kind)
			assert.Contains(t, malformedErr.Reason, tc.reason)
		})
	}
}

func TestNewModule(t *testing.T) {
	t.Run("duplicate public dependency is malformed", func(t *testing.T) {
		_, err := NewModule(ModuleSpec{
			Name:               "Game",
			PCHPolicy:          PCHExplicitOrShared,
			PublicDependencies: []string{"Core", "Engine", "Core"},
		})
		var malformedErr *MalformedDescriptorError
		require.ErrorAs(t, err, &malformedErr)
		assert.Contains(t, err.Error(), `public_dependencies lists "Core" more than once`)
	})

	t.Run("missing policy is malformed", func(t *testing.T) {
		_, err := NewModule(ModuleSpec{Name: "Game"})
		assert.ErrorContains(t, err, "pch_usage is required")
	})

	t.Run("reserved rune in name is malformed", func(t *testing.T) {
		_, err := NewModule(ModuleSpec{Name: "@target/Game", PCHPolicy: PCHNone})
		var malformedErr *MalformedDescriptorError
		require.ErrorAs(t, err, &malformedErr)
		assert.Equal(t, "module", malformedErr.Kind)
		assert.Contains(t, malformedErr.Reason, `must not contain '@'`)

		_, err = NewExternal("Core@5", "engine/Core")
		require.ErrorAs(t, err, &malformedErr)
		assert.Equal(t, "external", malformedErr.Kind)
	})

	t.Run("self reference is accepted for the graph builder to report", func(t *testing.T) {
		m := mustModule(t, ModuleSpec{Name: "X", PCHPolicy: PCHNone, PublicDependencies: []string{"X"}})
		assert.Equal(t, []string{"X"}, m.PublicDependencies())
	})

	t.Run("overlap lists names declared both ways", func(t *testing.T) {
		m := mustModule(t, ModuleSpec{
			Name:                "Game",
			PCHPolicy:           PCHNone,
			PublicDependencies:  []string{"Core", "Engine"},
			PrivateDependencies: []string{"Slate", "Engine"},
		})
		assert.Equal(t, []string{"Engine"}, m.Overlap())
	})
}

func TestParseEnums(t *testing.T) {
	kind, err := ParseKind("plugin-hosted")
	require.NoError(t, err)
	assert.Equal(t, PluginHosted, kind)

	kind, err = ParseKind("sharedlibrary")
	require.NoError(t, err)
	assert.Equal(t, SharedLibrary, kind)

	_, err = ParseKind("Game")
	assert.Error(t, err)

	policy, err := ParsePCHPolicy("Explicit_Or_Shared")
	require.NoError(t, err)
	assert.Equal(t, PCHExplicitOrShared, policy)
	assert.Equal(t, "ExplicitOrShared", policy.String())

	_, err = ParsePCHPolicy("")
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	s := NewStore()

	tgt, err := NewTarget("T", Executable, []string{"Game"})
	require.NoError(t, err)
	require.NoError(t, s.AddTarget(tgt))
	require.NoError(t, s.AddModule(mustModule(t, ModuleSpec{Name: "Game", PCHPolicy: PCHNone})))

	core, err := NewExternal("Core", "engine/Core")
	require.NoError(t, err)
	require.NoError(t, s.AddExternal(core))

	t.Run("duplicate target", func(t *testing.T) {
		var dupErr *DuplicateNameError
		require.ErrorAs(t, s.AddTarget(tgt), &dupErr)
		assert.Equal(t, "T", dupErr.Name)
	})

	t.Run("module colliding with external", func(t *testing.T) {
		err := s.AddModule(mustModule(t, ModuleSpec{Name: "Core", PCHPolicy: PCHNone}))
		var dupErr *DuplicateNameError
		require.True(t, errors.As(err, &dupErr))
		assert.Equal(t, "Core", dupErr.Name)
	})

	t.Run("ensure external skips existing names", func(t *testing.T) {
		added, err := s.EnsureExternal("Game", "engine/Game")
		require.NoError(t, err)
		assert.False(t, added)

		added, err = s.EnsureExternal("InputCore", "engine/InputCore")
		require.NoError(t, err)
		assert.True(t, added)

		ext, ok := s.External("InputCore")
		require.True(t, ok)
		assert.Equal(t, "engine/InputCore", ext.ArtifactRef())
	})

	targets, modules, externals := s.Counts()
	assert.Equal(t, 1, targets)
	assert.Equal(t, 1, modules)
	assert.Equal(t, 2, externals)
	assert.Equal(t, []string{"T"}, s.TargetNames())
}

func TestWithSource(t *testing.T) {
	_, err := NewTarget("", Executable, []string{"A"})
	err = WithSource(err, "targets.hcl")
	assert.Contains(t, err.Error(), "(in targets.hcl)")

	plain := errors.New("boom")
	assert.Same(t, plain, WithSource(plain, "x"))
}
