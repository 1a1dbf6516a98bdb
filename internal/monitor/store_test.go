package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"showbot/internal/storage"
	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

func TestRegistryAddRequiresEnabled(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	ctx := context.Background()

	if _, err := r.AddProject(ctx, "user:1", "1001"); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("err = %v, want ErrNotEnabled", err)
	}
	r.SetEnabled(ctx, "user:1", true)
	if res, err := r.AddProject(ctx, "user:1", "1001"); err != nil || res != Added {
		t.Fatalf("AddProject = %v, %v", res, err)
	}
	if res, err := r.AddProject(ctx, "user:1", "1001"); err != nil || res != AlreadyTracked {
		t.Fatalf("second AddProject = %v, %v", res, err)
	}
}

func TestRegistryInvalidProjectID(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	ctx := context.Background()
	r.SetEnabled(ctx, "user:1", true)

	for _, bad := range []string{"abc", "", "12a", "-5", "1.5"} {
		if _, err := r.AddProject(ctx, "user:1", bad); !errors.Is(err, ErrInvalidProjectID) {
			t.Fatalf("AddProject(%q) err = %v, want ErrInvalidProjectID", bad, err)
		}
	}
	if got := r.ListProjects("user:1"); len(got) != 0 {
		t.Fatalf("tracked set changed by invalid adds: %v", got)
	}
}

func TestRegistryInsertionOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	ctx := context.Background()
	r.SetEnabled(ctx, "user:1", true)

	for _, pid := range []string{"300", "100", "200"} {
		if _, err := r.AddProject(ctx, "user:1", pid); err != nil {
			t.Fatal(err)
		}
	}
	got := r.ListProjects("user:1")
	want := []string{"300", "100", "200"}
	if len(got) != len(want) {
		t.Fatalf("ListProjects = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListProjects = %v, want %v", got, want)
		}
	}

	if res := r.RemoveProject(ctx, "user:1", "100"); res != Removed {
		t.Fatalf("RemoveProject = %v", res)
	}
	if res := r.RemoveProject(ctx, "user:1", "100"); res != NotTracked {
		t.Fatalf("second RemoveProject = %v", res)
	}
	got = r.ListProjects("user:1")
	if len(got) != 2 || got[0] != "300" || got[1] != "200" {
		t.Fatalf("after remove = %v", got)
	}
}

func TestRegistrySnapshotExcludesDisabled(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	ctx := context.Background()
	r.SetEnabled(ctx, "user:1", true)
	r.SetEnabled(ctx, "user:2", true)
	if _, err := r.AddProject(ctx, "user:1", "1001"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddProject(ctx, "user:2", "1002"); err != nil {
		t.Fatal(err)
	}
	r.SetEnabled(ctx, "user:2", false)

	snap := r.SnapshotEnabled()
	if _, ok := snap["user:2"]; ok {
		t.Fatal("disabled context present in snapshot")
	}
	if _, ok := snap["user:1"]; !ok {
		t.Fatal("enabled context missing from snapshot")
	}

	// The snapshot is detached from later mutations.
	if _, err := r.AddProject(ctx, "user:1", "9999"); err != nil {
		t.Fatal(err)
	}
	if len(snap["user:1"].Projects) != 1 {
		t.Fatalf("snapshot mutated: %v", snap["user:1"].Projects)
	}
}

func TestRegistryPersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "subs.yaml")
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	r := NewRegistry(st, logx.Nop())
	if err := r.Load(ctx, nil); err != nil {
		t.Fatal(err)
	}
	r.SetEnabled(ctx, "group:-500", true)
	r.RecordDeliveryAddress(ctx, "group:-500", kit.ChatTarget{ChatID: -500, ThreadID: 3})
	if _, err := r.AddProject(ctx, "group:-500", "85939"); err != nil {
		t.Fatal(err)
	}

	r2 := NewRegistry(st, logx.Nop())
	if err := r2.Load(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if !r2.Enabled("group:-500") {
		t.Fatal("enabled flag lost across restart")
	}
	snap := r2.SnapshotEnabled()
	view := snap["group:-500"]
	if len(view.Projects) != 1 || view.Projects[0] != "85939" {
		t.Fatalf("projects = %v", view.Projects)
	}
	if view.Target.ChatID != -500 || view.Target.ThreadID != 3 {
		t.Fatalf("target = %+v", view.Target)
	}
}

func TestRegistrySeedContexts(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	if err := r.Load(context.Background(), []string{"user:77"}); err != nil {
		t.Fatal(err)
	}
	if !r.Enabled("user:77") {
		t.Fatal("seed context not enabled")
	}
}
