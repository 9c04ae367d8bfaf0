package feed

import (
	"testing"
	"time"

	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

func details(createdAt string, host string) core.StageDetails {
	return core.StageDetails{
		CreatedAt: createdAt,
		HostID:    domain.HostID(host),
		Type:      domain.StageVideo,
		Mode:      domain.ModeNone,
		Status:    "ACTIVE",
		StageArn:  "arn:" + host,
	}
}

func hostOrder(f *Feed) []string {
	var out []string
	for _, s := range f.Snapshot() {
		out = append(out, string(s.HostID))
	}
	return out
}

func TestMergeSortsByCreationTime(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{
		details("2024-06-01T10:00:02Z", "c"),
		details("2024-06-01T10:00:00Z", "a"),
		details("2024-06-01T10:00:01Z", "b"),
	})

	got := hostOrder(f)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMergePreservesIdentity(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})

	before := f.FindByHost("b")
	before.Joined = true

	refreshed := details("t2", "b")
	refreshed.Mode = domain.ModePK
	refreshed.Status = "LIVE"
	f.Merge([]core.StageDetails{details("t1", "a"), refreshed, details("t3", "c")})

	after := f.FindByHost("b")
	if after != before {
		t.Fatal("refresh must mutate the existing stage, not replace it")
	}
	if after.Mode != domain.ModePK || after.Status != "LIVE" {
		t.Fatalf("mutable fields not updated: %+v", after)
	}
	if !after.Joined {
		t.Fatal("local-only state lost across refresh")
	}
}

func TestMutateVisibleInSnapshot(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{details("t1", "a")})

	stage := f.FindByHost("a")
	f.Mutate(stage, func(s *domain.Stage) {
		s.Joined = true
		s.Mode = domain.ModePK
	})

	snap := f.Snapshot()
	if len(snap) != 1 || !snap[0].Joined || snap[0].Mode != domain.ModePK {
		t.Fatalf("snapshot = %+v", snap)
	}

	// A nil stage is a no-op, not a panic.
	f.Mutate(nil, func(s *domain.Stage) { s.Joined = false })
}

func TestMergeRemovesAbsentStages(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})

	f.Merge([]core.StageDetails{details("t1", "a"), details("t3", "c")})

	got := hostOrder(f)
	want := []string{"a", "c"}
	if len(got) != 4 {
		// Exactly two stages remain, so the carousel gets padded.
		t.Fatalf("len = %d, want 4 (two stages plus two copies)", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v...", got, want)
		}
	}

	if f.FindByHost("b") != nil {
		t.Fatal("stage b must be gone")
	}
}

func TestTwoStagePadding(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{details("t1", "a"), details("t2", "b")})

	snap := f.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("len = %d, want 4", len(snap))
	}
	if snap[2].ID != "t1"+domain.CopyIDSuffix || snap[3].ID != "t2"+domain.CopyIDSuffix {
		t.Fatalf("copy ids = %q, %q", snap[2].ID, snap[3].ID)
	}
	if !snap[2].IsCopy() || snap[0].IsCopy() {
		t.Fatal("IsCopy must distinguish padding from real stages")
	}
	if snap[2].HostID != "a" || snap[2].Type != snap[0].Type {
		t.Fatal("copies must mirror their originals")
	}
}

func TestMergeEmptyClearsAll(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{details("t1", "a")})

	active, changed := f.Merge(nil)
	if active != nil || !changed {
		t.Fatalf("Merge(nil) = %v, %v", active, changed)
	}
	if f.Len() != 0 {
		t.Fatal("feed not cleared")
	}
}

func TestActiveIsAlwaysFirst(t *testing.T) {
	f := New(time.Second)
	active, changed := f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})
	if !changed || active == nil || active.HostID != "a" {
		t.Fatalf("active = %+v, changed = %v", active, changed)
	}

	// Same listing again: no identity change.
	_, changed = f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})
	if changed {
		t.Fatal("unchanged listing must not report an active change")
	}
}

func TestScrollRotation(t *testing.T) {
	f := New(time.Second)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.SetNow(func() time.Time { return now })

	f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})

	active, ok := f.Scroll(Up)
	if !ok || active.HostID != "b" {
		t.Fatalf("after up: active = %v, ok = %v", active.HostID, ok)
	}

	now = now.Add(2 * time.Second)
	active, ok = f.Scroll(Down)
	if !ok || active.HostID != "a" {
		t.Fatalf("after down: active = %v, ok = %v", active.HostID, ok)
	}
}

func TestScrollThresholdAndCooldown(t *testing.T) {
	f := New(time.Second)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.SetNow(func() time.Time { return now })

	f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})

	if _, ok := f.DetectScroll(49); ok {
		t.Fatal("below-threshold gesture must be ignored")
	}
	if _, ok := f.DetectScroll(-51); !ok {
		t.Fatal("past-threshold gesture must commit")
	}

	// Within the cooldown the same continuous gesture cannot commit
	// again.
	now = now.Add(500 * time.Millisecond)
	if _, ok := f.DetectScroll(-200); ok {
		t.Fatal("commit inside the cooldown window")
	}

	now = now.Add(600 * time.Millisecond)
	if _, ok := f.DetectScroll(-200); !ok {
		t.Fatal("cooldown elapsed, commit expected")
	}
}

func TestScrollSingleStageNoop(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{details("t1", "a")})

	if _, ok := f.Scroll(Up); ok {
		t.Fatal("single-element carousel must not rotate")
	}
}

func TestScrollTo(t *testing.T) {
	f := New(time.Second)
	f.Merge([]core.StageDetails{
		details("t1", "a"),
		details("t2", "b"),
		details("t3", "c"),
	})

	active, moved := f.ScrollTo("t3")
	if !moved || active.HostID != "c" {
		t.Fatalf("ScrollTo = %v, %v", active.HostID, moved)
	}
	got := hostOrder(f)
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	// Already at the front: not a move.
	if _, moved = f.ScrollTo("t3"); moved {
		t.Fatal("front element must not report a move")
	}
}
