package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	run := NewRunWithID("run-1")
	if err := run.SetSource([]byte("cover"), "image/png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := repo.FindByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != "run-1" {
		t.Errorf("expected ID run-1, got %s", found.ID)
	}
	if found.State != StateImageUploaded {
		t.Errorf("expected state %s, got %s", StateImageUploaded, found.State)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryRepository_Save_Updates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	run := NewRunWithID("run-1")
	_ = run.SetSource([]byte("cover"), "image/png")
	_ = repo.Save(ctx, run)

	_ = run.StartBackground()
	_ = repo.Save(ctx, run)

	found, err := repo.FindByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.State != StateBackgroundGenerating {
		t.Errorf("expected state %s, got %s", StateBackgroundGenerating, found.State)
	}
}

func TestMemoryRepository_Find_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	run := NewRunWithID("run-1")
	_ = run.SetSource([]byte("cover"), "image/png")
	_ = repo.Save(ctx, run)

	found, _ := repo.FindByID(ctx, "run-1")
	found.SourceImage.Data[0] = 'X'

	again, _ := repo.FindByID(ctx, "run-1")
	if again.SourceImage.Data[0] == 'X' {
		t.Error("mutating a returned run should not affect the stored run")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Save(ctx, NewRunWithID("run-1"))
	_ = repo.Save(ctx, NewRunWithID("run-2"))

	runs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Save(ctx, NewRunWithID("run-1"))

	if err := repo.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.FindByID(ctx, "run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound for second delete, got %v", err)
	}
}
