package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func buildCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "programacion-1", "subject.yaml"), "name: Programación 1\norder: 1\n")
	writeFile(t, filepath.Join(dir, "algoritmos", "subject.yaml"), "name: Algoritmos\norder: 2\n")
	writeFile(t, filepath.Join(dir, "notes", "README.md"), "not a subject")

	unit := filepath.Join(dir, "programacion-1", "secuenciales")
	writeFile(t, filepath.Join(unit, "unit.yaml"), "name: Estructuras secuenciales\norder: 1\n")
	writeFile(t, filepath.Join(unit, "sec_saludo.yaml"), `
title: Saludo
prompt: Imprimí un saludo.
starter: |
  def saludo(nombre):
      pass
hints:
  - Usá print
  - Concatená el nombre
order: 2
`)
	writeFile(t, filepath.Join(unit, "sec_area.yaml"), `
title: Área
prompt: Calculá el área de un rectángulo.
starter: "def area(b, h): pass"
order: 1
`)
	writeFile(t, filepath.Join(unit, "broken.yaml"), "title: [unterminated")

	writeFile(t, filepath.Join(dir, "programacion-1", "condicionales", "unit.yaml"), "name: Condicionales\norder: 2\n")

	return dir
}

func TestLoadFromDir(t *testing.T) {
	loader := NewLoader()
	if err := loader.LoadFromDir(buildCatalog(t)); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	ctx := context.Background()

	subjects, err := loader.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %d", len(subjects))
	}
	if subjects[0].ID != "programacion-1" || subjects[0].Name != "Programación 1" {
		t.Errorf("unexpected first subject: %+v", subjects[0])
	}

	units, err := loader.ListUnits(ctx, "programacion-1")
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if len(units) != 2 || units[0].ID != "secuenciales" || units[1].ID != "condicionales" {
		t.Fatalf("unexpected units: %+v", units)
	}

	problems, err := loader.ListProblems(ctx, "programacion-1", "secuenciales")
	if err != nil {
		t.Fatalf("ListProblems: %v", err)
	}
	ids := problems.IDs()
	if len(ids) != 2 || ids[0] != "sec_area" || ids[1] != "sec_saludo" {
		t.Fatalf("unexpected problem order: %v", ids)
	}

	saludo := problems.Get("sec_saludo")
	if saludo == nil {
		t.Fatal("sec_saludo not found")
	}
	if len(saludo.Metadata.Hints) != 2 {
		t.Errorf("expected 2 hints, got %d", len(saludo.Metadata.Hints))
	}
	if saludo.Metadata.SubjectID != "programacion-1" || saludo.Metadata.UnitID != "secuenciales" {
		t.Errorf("unexpected scope: %+v", saludo.Metadata)
	}
	if saludo.StarterCode == "" {
		t.Error("expected starter code")
	}

	empty, err := loader.ListProblems(ctx, "programacion-1", "condicionales")
	if err != nil {
		t.Fatalf("ListProblems(empty unit): %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("expected empty unit, got %d problems", empty.Len())
	}
}

func TestNotFound(t *testing.T) {
	loader := NewLoader()
	if err := loader.LoadFromDir(buildCatalog(t)); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	ctx := context.Background()

	if _, err := loader.ListUnits(ctx, "quimica"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("ListUnits(unknown) error = %v, want ErrSubjectNotFound", err)
	}
	if _, err := loader.ListProblems(ctx, "programacion-1", "recursion"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("ListProblems(unknown unit) error = %v, want ErrUnitNotFound", err)
	}
}

func TestCancelledContext(t *testing.T) {
	loader := NewLoader()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := loader.ListSubjects(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ListSubjects error = %v, want context.Canceled", err)
	}
}

func TestReload(t *testing.T) {
	dir := buildCatalog(t)
	loader := NewLoader()

	if err := loader.Reload(); err == nil {
		t.Fatal("Reload before LoadFromDir should fail")
	}
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	writeFile(t, filepath.Join(dir, "programacion-1", "condicionales", "cond_par.yaml"), "prompt: ¿Es par?\n")
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	problems, err := loader.ListProblems(context.Background(), "programacion-1", "condicionales")
	if err != nil {
		t.Fatalf("ListProblems: %v", err)
	}
	if problems.First() == nil || problems.First().ID != "cond_par" {
		t.Fatalf("reloaded problem missing: %v", problems.IDs())
	}
	if problems.First().Title() != "cond_par" {
		t.Errorf("title fallback = %q", problems.First().Title())
	}
}

func TestLoadFromMissingDir(t *testing.T) {
	if err := NewLoader().LoadFromDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

type countingReloader struct {
	calls chan struct{}
}

func (c *countingReloader) Reload() error {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return nil
}

func TestRefresher(t *testing.T) {
	r := &countingReloader{calls: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	ref := NewRefresher(r, 5*time.Millisecond)
	ref.Start(ctx)

	select {
	case <-r.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("catalog was never reloaded")
	}

	cancel()
	select {
	case <-ref.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestRefresherPicksUpNewProblems(t *testing.T) {
	dir := buildCatalog(t)

	l := NewLoader()
	if err := l.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}

	writeFile(t, filepath.Join(dir, "programacion-1", "secuenciales", "sec_extra.yaml"), "title: Extra\nprompt: Uno más.\n")
	NewRefresher(l, time.Hour).refresh()

	ps, err := l.ListProblems(context.Background(), "programacion-1", "secuenciales")
	if err != nil {
		t.Fatalf("ListProblems: %v", err)
	}
	if ps.Get("sec_extra") == nil {
		t.Fatalf("new problem not visible after refresh: %v", ps.IDs())
	}
}
