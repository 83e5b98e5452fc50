package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modplan/internal/cache"
	"github.com/vk/modplan/internal/descriptor"
	"github.com/vk/modplan/internal/graph"
	"github.com/vk/modplan/internal/pch"
	"github.com/vk/modplan/internal/toolchain"
)

type mod struct {
	name    string
	public  []string
	private []string
	policy  descriptor.PCHPolicy
}

// prepare builds, annotates and fingerprints a graph for target "Game".
func prepare(t *testing.T, entries []string, modules []mod, externals ...string) *graph.Graph {
	t.Helper()
	s := descriptor.NewStore()
	tgt, err := descriptor.NewTarget("Game", descriptor.Executable, entries)
	require.NoError(t, err)
	require.NoError(t, s.AddTarget(tgt))
	for _, m := range modules {
		policy := m.policy
		if policy == 0 {
			policy = descriptor.PCHExplicitOrShared
		}
		md, err := descriptor.NewModule(descriptor.ModuleSpec{
			Name:                m.name,
			PCHPolicy:           policy,
			PublicDependencies:  m.public,
			PrivateDependencies: m.private,
		})
		require.NoError(t, err)
		require.NoError(t, s.AddModule(md))
	}
	for _, name := range externals {
		_, err := s.EnsureExternal(name, "engine/"+name)
		require.NoError(t, err)
	}

	ctx := context.Background()
	g, err := graph.Build(ctx, s, "Game")
	require.NoError(t, err)
	require.NoError(t, pch.Annotate(ctx, g))
	f, err := cache.NewFingerprinter(0)
	require.NoError(t, err)
	require.NoError(t, f.Annotate(ctx, g))
	return g
}

// fakeToolchain records requests and fails the configured modules.
type fakeToolchain struct {
	mu       sync.Mutex
	compiles []toolchain.CompileRequest
	links    []toolchain.LinkRequest

	id       string
	fail     map[string]bool
	failLink bool
	delay    time.Duration
	onStart  func(module string)

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *fakeToolchain) Compile(ctx context.Context, req toolchain.CompileRequest) (string, error) {
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.maxRunning.Load()
		if cur <= peak || f.maxRunning.CompareAndSwap(peak, cur) {
			break
		}
	}
	if f.onStart != nil {
		f.onStart(req.Module)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.compiles = append(f.compiles, req)
	f.mu.Unlock()

	if f.fail[req.Module] {
		return "", fmt.Errorf("syntax error in %s.cpp", req.Module)
	}
	return filepath.Join("out", req.Module+".o"), nil
}

func (f *fakeToolchain) Link(ctx context.Context, req toolchain.LinkRequest) (string, error) {
	f.mu.Lock()
	f.links = append(f.links, req)
	f.mu.Unlock()
	if f.failLink {
		return "", errors.New("undefined symbol")
	}
	return filepath.Join("out", req.Target), nil
}

func (f *fakeToolchain) Fingerprint() string { return "fake:" + f.id }

func (f *fakeToolchain) compiled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, req := range f.compiles {
		out = append(out, req.Module)
	}
	slices.Sort(out)
	return out
}

func (f *fakeToolchain) request(module string) (toolchain.CompileRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.compiles {
		if req.Module == module {
			return req, true
		}
	}
	return toolchain.CompileRequest{}, false
}

func TestPlan_DeclaredOrderScenario(t *testing.T) {
	g := prepare(t, []string{"B", "C"}, []mod{
		{name: "A"},
		{name: "B", public: []string{"A"}},
		{name: "C", public: []string{"A"}},
	})

	plan := Plan(g)

	if diff := cmp.Diff([][]string{{"A"}, {"B", "C"}}, plan.Names()); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_EntryOrderBeatsLexicalOrder(t *testing.T) {
	g := prepare(t, []string{"Zeta", "Alpha"}, []mod{
		{name: "Zeta", private: []string{"Core"}},
		{name: "Alpha", public: []string{"Core"}},
		{name: "Beta"},
		{name: "Gamma", public: []string{"Beta"}},
		{name: "Delta", public: []string{"Gamma", "Zeta", "Alpha"}},
	}, "Core")

	plan := Plan(g)

	// Beta, Gamma and Delta are unreachable from the entries.
	assert.Equal(t, [][]string{{"Core"}, {"Zeta", "Alpha"}}, plan.Names())
}

func TestPlan_LayersRespectDependencies(t *testing.T) {
	g := prepare(t, []string{"AfterCurfew", "Tools"}, []mod{
		{name: "AfterCurfew", public: []string{"Core", "Engine"}, private: []string{"Audio", "Render"}},
		{name: "Audio", public: []string{"Core"}},
		{name: "Render", public: []string{"Audio", "Engine"}},
		{name: "Tools", public: []string{"Core"}},
	}, "Core", "Engine")

	plan := Plan(g)

	assert.Equal(t, [][]string{
		{"Core", "Engine"},
		{"Tools", "Audio"},
		{"Render"},
		{"AfterCurfew"},
	}, plan.Names())
	assert.Len(t, plan.Nodes(), g.Len())
}

func TestPlan_StringIsDeterministic(t *testing.T) {
	modules := []mod{
		{name: "AfterCurfew", public: []string{"Core", "CoreUObject", "Engine", "InputCore"}},
	}
	first := Plan(prepare(t, []string{"AfterCurfew"}, modules, "Core", "CoreUObject", "Engine", "InputCore")).String()
	second := Plan(prepare(t, []string{"AfterCurfew"}, modules, "InputCore", "Engine", "CoreUObject", "Core")).String()

	assert.Equal(t, first, second)
	want := `target Game (Executable)
shared baseline pch/Game/shared
layer 0:
  Core (external engine/Core)
  CoreUObject (external engine/CoreUObject)
  Engine (external engine/Engine)
  InputCore (external engine/InputCore)
layer 1:
  AfterCurfew (pch Shared)
`
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("plan rendering mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_Success(t *testing.T) {
	// --- Arrange ---
	g := prepare(t, []string{"Game"}, []mod{
		{name: "Game", public: []string{"Engine", "Physics"}, private: []string{"Audio"}},
		{name: "Physics", public: []string{"Core"}, private: []string{"Math"}},
		{name: "Math", policy: descriptor.PCHForceExplicit},
		{name: "Audio", policy: descriptor.PCHNone},
	}, "Core", "Engine")
	tc := &fakeToolchain{}
	store := cache.NewStore()

	// --- Act ---
	res := NewExecutor(tc, store, Options{Jobs: 2}).Execute(context.Background(), Plan(g))

	// --- Assert ---
	require.NoError(t, res.Err())
	assert.Equal(t, Succeeded, res.Status)
	assert.Equal(t, []string{"Audio", "Math", "Physics", "Game"}, res.Built)
	assert.Empty(t, res.Reused)
	assert.Equal(t, []string{"Audio", "Game", "Math", "Physics"}, tc.compiled(), "externals are never compiled")

	for _, n := range g.Nodes() {
		assert.Equal(t, graph.Built, n.State(), n.Name())
		if !n.IsExternal() {
			rec, ok := store.Lookup(n.Name())
			require.True(t, ok, n.Name())
			assert.Equal(t, n.Fingerprint(), rec.Fingerprint)
		}
	}

	game, ok := tc.request("Game")
	require.True(t, ok)
	assert.Equal(t, "Explicit", game.PCH, "Physics depends on an explicit module")
	assert.Empty(t, game.Baseline)
	assert.Equal(t, []string{"out/Audio.o", "engine/Core", "engine/Engine", "out/Physics.o"}, game.Dependencies,
		"Math is private to Physics and stays hidden")

	audio, _ := tc.request("Audio")
	assert.Equal(t, "None", audio.PCH)

	require.Len(t, tc.links, 1)
	assert.Equal(t, "Game", tc.links[0].Target)
	assert.Equal(t, []string{"out/Audio.o", "engine/Core", "engine/Engine", "out/Math.o", "out/Physics.o", "out/Game.o"}, tc.links[0].Artifacts)
	assert.Equal(t, filepath.Join("out", "Game"), res.LinkArtifact)
}

func TestExecute_SharedModulesReceiveBaseline(t *testing.T) {
	g := prepare(t, []string{"AfterCurfew"}, []mod{
		{name: "AfterCurfew", public: []string{"Core", "Engine"}},
	}, "Core", "Engine")
	tc := &fakeToolchain{}

	res := NewExecutor(tc, nil, Options{}).Execute(context.Background(), Plan(g))
	require.NoError(t, res.Err())

	req, ok := tc.request("AfterCurfew")
	require.True(t, ok)
	assert.Equal(t, "Shared", req.PCH)
	assert.Equal(t, "pch/Game/shared", req.Baseline)
}

func TestExecute_SecondRunReusesEverything(t *testing.T) {
	modules := []mod{
		{name: "A"},
		{name: "B", public: []string{"A"}},
		{name: "C", public: []string{"A"}},
	}
	store := cache.NewStore()

	first := &fakeToolchain{}
	res := NewExecutor(first, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"B", "C"}, modules)))
	require.NoError(t, res.Err())
	assert.Len(t, first.compiles, 3)

	second := &fakeToolchain{}
	res = NewExecutor(second, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"B", "C"}, modules)))
	require.NoError(t, res.Err())
	assert.Empty(t, second.compiles)
	assert.Empty(t, second.links)
	assert.Equal(t, []string{"A", "B", "C"}, res.Reused)
	assert.True(t, res.LinkReused)
	assert.Equal(t, filepath.Join("out", "Game"), res.LinkArtifact)

	forced := &fakeToolchain{}
	res = NewExecutor(forced, store, Options{ForceRebuild: true}).Execute(context.Background(), Plan(prepare(t, []string{"B", "C"}, modules)))
	require.NoError(t, res.Err())
	assert.Len(t, forced.compiles, 3)
	assert.Len(t, forced.links, 1)
}

func TestExecute_ToolchainChangeRebuildsEverything(t *testing.T) {
	modules := []mod{
		{name: "A"},
		{name: "B", public: []string{"A"}},
	}
	store := cache.NewStore()

	res := NewExecutor(&fakeToolchain{id: "gcc"}, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"B"}, modules)))
	require.NoError(t, res.Err())

	clang := &fakeToolchain{id: "clang"}
	res = NewExecutor(clang, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"B"}, modules)))
	require.NoError(t, res.Err())

	assert.Equal(t, []string{"A", "B"}, clang.compiled())
	assert.Len(t, clang.links, 1)
	assert.Empty(t, res.Reused)
	assert.False(t, res.LinkReused)
}

func TestExecute_DescriptorChangeRebuildsDependents(t *testing.T) {
	store := cache.NewStore()
	before := []mod{
		{name: "A"},
		{name: "B", public: []string{"A"}},
		{name: "C"},
		{name: "D", public: []string{"B", "C"}},
	}
	res := NewExecutor(&fakeToolchain{}, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"D"}, before)))
	require.NoError(t, res.Err())

	after := slices.Clone(before)
	after[0] = mod{name: "A", public: []string{"E"}}
	after = append(after, mod{name: "E"})
	tc := &fakeToolchain{}
	res = NewExecutor(tc, store, Options{}).Execute(context.Background(), Plan(prepare(t, []string{"D"}, after)))
	require.NoError(t, res.Err())

	assert.Equal(t, []string{"A", "B", "D", "E"}, tc.compiled())
	assert.Equal(t, []string{"C"}, res.Reused)
}

func TestExecute_FailureStopsLaterLayers(t *testing.T) {
	// --- Arrange ---
	g := prepare(t, []string{"Game"}, []mod{
		{name: "Game", public: []string{"Physics", "Audio", "Net"}},
		{name: "Physics"},
		{name: "Audio"},
		{name: "Net"},
	})
	tc := &fakeToolchain{fail: map[string]bool{"Audio": true, "Physics": true}}
	store := cache.NewStore()

	// --- Act ---
	res := NewExecutor(tc, store, Options{Jobs: 1}).Execute(context.Background(), Plan(g))

	// --- Assert ---
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, []string{"Audio", "Physics"}, res.FailedModules())
	assert.Equal(t, []string{"Net"}, res.Built, "siblings in the failing layer finish")
	assert.Equal(t, []string{"Game"}, res.NotAttempted)
	assert.Empty(t, tc.links)

	err := res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error in Audio.cpp")
	assert.Contains(t, err.Error(), "syntax error in Physics.cpp")
	var compileErr *toolchain.CompileError
	require.ErrorAs(t, err, &compileErr)

	audio, _ := g.Node("Audio")
	assert.Equal(t, graph.Failed, audio.State())
	game, _ := g.Node("Game")
	assert.Equal(t, graph.Pending, game.State())

	_, ok := store.Lookup("Audio")
	assert.False(t, ok, "failed modules are not recorded")
	_, ok = store.Lookup("Net")
	assert.True(t, ok)
}

func TestExecute_LinkFailure(t *testing.T) {
	g := prepare(t, []string{"A"}, []mod{{name: "A"}})
	tc := &fakeToolchain{failLink: true}

	res := NewExecutor(tc, nil, Options{}).Execute(context.Background(), Plan(g))

	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, []string{"A"}, res.Built)
	var linkErr *toolchain.LinkError
	require.ErrorAs(t, res.Err(), &linkErr)
	assert.Equal(t, "Game", linkErr.Target)
}

func TestExecute_JobsBoundConcurrency(t *testing.T) {
	var modules []mod
	var entries []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("M%d", i)
		modules = append(modules, mod{name: name})
		entries = append(entries, name)
	}
	g := prepare(t, entries, modules)
	tc := &fakeToolchain{delay: 20 * time.Millisecond}

	res := NewExecutor(tc, nil, Options{Jobs: 3}).Execute(context.Background(), Plan(g))

	require.NoError(t, res.Err())
	assert.Len(t, res.Built, 8)
	assert.LessOrEqual(t, tc.maxRunning.Load(), int32(3))
	assert.Greater(t, tc.maxRunning.Load(), int32(1))
}

func TestExecute_CancellationBetweenLayers(t *testing.T) {
	g := prepare(t, []string{"B"}, []mod{
		{name: "A"},
		{name: "B", public: []string{"A"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tc := &fakeToolchain{onStart: func(string) { cancel() }}

	res := NewExecutor(tc, nil, Options{}).Execute(ctx, Plan(g))

	assert.Equal(t, Cancelled, res.Status)
	assert.Equal(t, []string{"A"}, res.Built, "dispatched work runs to completion")
	assert.Equal(t, []string{"B"}, res.NotAttempted)
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestNewExecutor_DefaultsJobs(t *testing.T) {
	e := NewExecutor(&fakeToolchain{}, nil, Options{})
	assert.Positive(t, e.jobs)
	assert.NotNil(t, e.cache)
}
