package dag

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/legout/flowerpower-sub010/config"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/pipeline"
)

// --- test helpers ---

func node(name string, fn pipeline.NodeFunc, deps ...string) pipeline.NodeSpec {
	return pipeline.NodeSpec{Name: name, DependsOn: deps, Fn: fn}
}

func constNode(name string, value any, deps ...string) pipeline.NodeSpec {
	return node(name, func(ctx context.Context, inputs map[string]any) (any, error) {
		return value, nil
	}, deps...)
}

func sumNode(name string, deps ...string) pipeline.NodeSpec {
	return node(name, func(ctx context.Context, inputs map[string]any) (any, error) {
		total := 0
		for _, dep := range deps {
			v, ok := inputs[dep].(int)
			if !ok {
				return nil, fmt.Errorf("missing dependency %s", dep)
			}
			total += v
		}
		return total, nil
	}, deps...)
}

func seqConfig(finalVars ...string) *config.RunConfig {
	return &config.RunConfig{
		Pipeline:  "test",
		FinalVars: finalVars,
		Inputs:    map[string]any{},
		Executor:  config.ExecutorSelector{Type: config.ExecutorSequential, MaxWorkers: 1},
	}
}

func concConfig(workers int, finalVars ...string) *config.RunConfig {
	cfg := seqConfig(finalVars...)
	cfg.Executor = config.ExecutorSelector{Type: config.ExecutorConcurrent, MaxWorkers: workers}
	return cfg
}

// --- composition ---

func TestCompose_LastModuleWins(t *testing.T) {
	a := &pipeline.Module{Name: "a", Nodes: []pipeline.NodeSpec{constNode("x", "from-a")}}
	b := &pipeline.Module{Name: "b", Nodes: []pipeline.NodeSpec{constNode("x", "from-b")}}

	g, err := Compose(b, []*pipeline.Module{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Nodes["x"].Module != "b" {
		t.Fatalf("expected b's definition to win, got %s", g.Nodes["x"].Module)
	}

	g, err = Compose(a, []*pipeline.Module{b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Nodes["x"].Module != "a" {
		t.Fatalf("expected a's definition to win, got %s", g.Nodes["x"].Module)
	}
}

func TestCompose_LastWinsValue(t *testing.T) {
	// Composing [A, B] where both define x yields B's x; [B, A] yields A's.
	a := &pipeline.Module{Name: "a", Nodes: []pipeline.NodeSpec{constNode("x", "A")}}
	b := &pipeline.Module{Name: "b", Nodes: []pipeline.NodeSpec{constNode("x", "B")}}
	engine := NewEngine(nil)

	g, err := Compose(b, []*pipeline.Module{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := engine.Run(context.Background(), g, seqConfig("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["x"] != "B" {
		t.Fatalf("expected B, got %v", out["x"])
	}

	g, err = Compose(a, []*pipeline.Module{b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err = engine.Run(context.Background(), g, seqConfig("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["x"] != "A" {
		t.Fatalf("expected A, got %v", out["x"])
	}
}

func TestCompose_UnresolvedDependency(t *testing.T) {
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{constNode("a", 1, "ghost")}}
	_, err := Compose(m, nil)
	if err == nil {
		t.Fatal("expected unresolved dependency error")
	}
	if !fperrors.IsKind(err, fperrors.KindResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected dependency name in error, got %v", err)
	}
}

func TestCompose_CycleDetected(t *testing.T) {
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{
		constNode("a", 1, "b"),
		constNode("b", 2, "a"),
	}}
	_, err := Compose(m, nil)
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestCompose_CrossModuleDependencies(t *testing.T) {
	// setup defines conn; main depends on conn and defines result.
	setup := &pipeline.Module{Name: "setup", Nodes: []pipeline.NodeSpec{constNode("conn", 10)}}
	main := &pipeline.Module{Name: "main", Nodes: []pipeline.NodeSpec{sumNode("result", "conn")}}

	g, err := Compose(main, []*pipeline.Module{setup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := NewEngine(nil).Run(context.Background(), g, seqConfig("result"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one output, got %v", out)
	}
	if out["result"] != 10 {
		t.Fatalf("expected 10, got %v", out["result"])
	}
}

// --- levels ---

func TestBuildLevels_Deterministic(t *testing.T) {
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{
		constNode("b", 1),
		constNode("a", 2),
		sumNode("c", "a", "b"),
	}}
	g, err := Compose(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	levels, err := BuildLevels(g, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("expected %v, got %v", want, levels)
	}
}

// --- execution ---

func diamond() *pipeline.Module {
	return &pipeline.Module{Name: "diamond", Nodes: []pipeline.NodeSpec{
		constNode("root", 1),
		sumNode("left", "root"),
		sumNode("right", "root"),
		sumNode("sink", "left", "right"),
	}}
}

func TestRun_Sequential(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := NewEngine(nil).Run(context.Background(), g, seqConfig("sink"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["sink"] != 2 {
		t.Fatalf("expected 2, got %v", out["sink"])
	}
}

func TestRun_ConcurrentMatchesSequential(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewEngine(nil)

	seq, err := engine.Run(context.Background(), g, seqConfig("sink", "left"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conc, err := engine.Run(context.Background(), g, concConfig(4, "sink", "left"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(seq, conc) {
		t.Fatalf("expected identical outputs, got %v vs %v", seq, conc)
	}
}

func TestRunAsync_MatchesRun(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewEngine(nil)

	sync, err := engine.Run(context.Background(), g, seqConfig("sink"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	async, err := engine.RunAsync(context.Background(), g, seqConfig("sink"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sync, async) {
		t.Fatalf("expected identical outputs, got %v vs %v", sync, async)
	}
}

func TestRun_Idempotent(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewEngine(nil)

	first, err := engine.Run(context.Background(), g, seqConfig("sink"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Run(context.Background(), g, seqConfig("sink"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected equal result maps, got %v vs %v", first, second)
	}
}

func TestRun_UnknownFinalVar(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = NewEngine(nil).Run(context.Background(), g, seqConfig("nope"))
	if err == nil {
		t.Fatal("expected unknown output error")
	}
	if !fperrors.IsKind(err, fperrors.KindResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestRun_InputOverridesNode(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := seqConfig("sink")
	cfg.Inputs = map[string]any{"root": 5}
	out, err := NewEngine(nil).Run(context.Background(), g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["sink"] != 10 {
		t.Fatalf("expected 10 with overridden root, got %v", out["sink"])
	}
}

func TestRun_ParamsReachNodes(t *testing.T) {
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{
		node("scaled", func(ctx context.Context, inputs map[string]any) (any, error) {
			factor, _ := inputs["factor"].(int)
			return 2 * factor, nil
		}),
	}}
	g, err := Compose(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := seqConfig("scaled")
	cfg.Inputs = map[string]any{"factor": 21}
	out, err := NewEngine(nil).Run(context.Background(), g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["scaled"] != 42 {
		t.Fatalf("expected 42, got %v", out["scaled"])
	}
}

func TestRun_PrunesToRequestedOutputs(t *testing.T) {
	var ran atomic.Int32
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{
		constNode("wanted", 1),
		node("unwanted", func(ctx context.Context, inputs map[string]any) (any, error) {
			ran.Add(1)
			return 2, nil
		}),
	}}
	g, err := Compose(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := NewEngine(nil).Run(context.Background(), g, seqConfig("wanted"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out["unwanted"]; ok {
		t.Fatal("expected only requested outputs")
	}
	if ran.Load() != 0 {
		t.Fatal("expected unrequested node to be skipped")
	}
}

func TestRun_NodeFailureCarriesPartialResults(t *testing.T) {
	m := &pipeline.Module{Name: "m", Nodes: []pipeline.NodeSpec{
		constNode("ok", 1),
		node("boom", func(ctx context.Context, inputs map[string]any) (any, error) {
			return nil, fmt.Errorf("kaput")
		}, "ok"),
	}}
	g, err := Compose(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = NewEngine(nil).Run(context.Background(), g, seqConfig("boom"))
	if err == nil {
		t.Fatal("expected execution error")
	}
	if !fperrors.IsKind(err, fperrors.KindExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	var fpErr *fperrors.Error
	if !stderrors.As(err, &fpErr) {
		t.Fatal("expected *errors.Error")
	}
	if fpErr.Details["node"] != "boom" {
		t.Fatalf("expected failing node name, got %v", fpErr.Details)
	}
	partial, ok := fpErr.Details["partial_results"].(map[string]any)
	if !ok || partial["ok"] != 1 {
		t.Fatalf("expected partial result of completed node, got %v", fpErr.Details)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(nil).Run(ctx, g, seqConfig("sink")); err == nil {
		t.Fatal("expected context error")
	}
}

func TestTrackerAdapter_RecordsOutcomes(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := seqConfig("sink")
	cfg.Adapters.Tracker = true
	if _, err := NewEngine(nil).Run(context.Background(), g, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExportDOT(t *testing.T) {
	g, err := Compose(diamond(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dot := ExportDOT("diamond", g)
	if !strings.Contains(dot, `"root" -> "left"`) {
		t.Fatalf("expected edge in DOT output:\n%s", dot)
	}
	if dot != ExportDOT("diamond", g) {
		t.Fatal("expected stable DOT output")
	}
}
