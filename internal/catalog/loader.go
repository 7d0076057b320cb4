package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cortezalberto/coderunner1/internal/models"
)

var (
	ErrSubjectNotFound = errors.New("subject not found")
	ErrUnitNotFound    = errors.New("unit not found")
)

// Loader serves an exercise catalog read from a directory tree:
//
//	<dir>/<subject>/subject.yaml
//	<dir>/<subject>/<unit>/unit.yaml
//	<dir>/<subject>/<unit>/<problem>.yaml
//
// Entries are ordered by their `order` field, then by id.
type Loader struct {
	mu       sync.RWMutex
	dir      string
	subjects []models.Subject
	units    map[string][]models.Unit
	problems map[string]*models.ProblemSet
}

// NewLoader creates an empty catalog loader
func NewLoader() *Loader {
	return &Loader{
		units:    make(map[string][]models.Unit),
		problems: make(map[string]*models.ProblemSet),
	}
}

// LoadFromDir scans dir and replaces the loaded catalog
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	var subjects []orderedSubject
	units := make(map[string][]models.Unit)
	problems := make(map[string]*models.ProblemSet)
	problemCount := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		subjectDir := filepath.Join(dir, entry.Name())
		subjectYaml := filepath.Join(subjectDir, "subject.yaml")
		if _, err := os.Stat(subjectYaml); os.IsNotExist(err) {
			continue // not a subject directory
		}

		subject, err := loadSubject(entry.Name(), subjectYaml)
		if err != nil {
			slog.Warn("failed to load subject", "dir", entry.Name(), "error", err)
			continue
		}

		subjectUnits, err := loadUnits(subject.subject.ID, subjectDir)
		if err != nil {
			slog.Warn("failed to load units", "subject", subject.subject.ID, "error", err)
			continue
		}

		list := make([]models.Unit, 0, len(subjectUnits))
		for _, u := range subjectUnits {
			list = append(list, u.unit)
			problems[problemsKey(subject.subject.ID, u.unit.ID)] = u.problems
			problemCount += u.problems.Len()
		}
		units[subject.subject.ID] = list
		subjects = append(subjects, subject)
	}

	sort.SliceStable(subjects, func(i, j int) bool {
		return less(subjects[i].order, subjects[i].subject.ID, subjects[j].order, subjects[j].subject.ID)
	})

	ordered := make([]models.Subject, 0, len(subjects))
	for _, s := range subjects {
		ordered = append(ordered, s.subject)
	}

	l.mu.Lock()
	l.dir = dir
	l.subjects = ordered
	l.units = units
	l.problems = problems
	l.mu.Unlock()

	slog.Info("catalog loaded", "subjects", len(ordered), "problems", problemCount)
	return nil
}

// Reload re-reads the directory the catalog was loaded from
func (l *Loader) Reload() error {
	l.mu.RLock()
	dir := l.dir
	l.mu.RUnlock()

	if dir == "" {
		return fmt.Errorf("catalog was not loaded from a directory")
	}
	return l.LoadFromDir(dir)
}

// ListSubjects returns subjects in catalog order
func (l *Loader) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Subject(nil), l.subjects...), nil
}

// ListUnits returns the units of a subject in catalog order
func (l *Loader) ListUnits(ctx context.Context, subjectID string) ([]models.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	units, ok := l.units[subjectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
	}
	return append([]models.Unit(nil), units...), nil
}

// ListProblems returns the problems of a unit in catalog order
func (l *Loader) ListProblems(ctx context.Context, subjectID, unitID string) (*models.ProblemSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.units[subjectID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
	}
	ps, ok := l.problems[problemsKey(subjectID, unitID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnitNotFound, subjectID, unitID)
	}
	return models.NewProblemSet(ps.List()...), nil
}

// --- Catalog loading ---

type orderedSubject struct {
	subject models.Subject
	order   int
}

type orderedUnit struct {
	unit     models.Unit
	problems *models.ProblemSet
}

func loadSubject(id, path string) (orderedSubject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return orderedSubject{}, fmt.Errorf("failed to read subject.yaml: %w", err)
	}

	var sf subjectFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return orderedSubject{}, fmt.Errorf("failed to parse subject.yaml: %w", err)
	}

	name := sf.Name
	if name == "" {
		name = id
	}

	return orderedSubject{
		subject: models.Subject{ID: id, Name: name, Description: sf.Description},
		order:   sf.Order,
	}, nil
}

// loadUnits loads every unit directory of a subject with its problems
func loadUnits(subjectID, dir string) ([]orderedUnit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read subject dir: %w", err)
	}

	var units []orderedUnit
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		unitDir := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(unitDir, "unit.yaml"))
		if err != nil {
			if os.IsNotExist(err) {
				continue // not a unit directory
			}
			slog.Warn("failed to read unit.yaml", "subject", subjectID, "unit", entry.Name(), "error", err)
			continue
		}

		var uf unitFile
		if err := yaml.Unmarshal(data, &uf); err != nil {
			slog.Warn("failed to parse unit.yaml", "subject", subjectID, "unit", entry.Name(), "error", err)
			continue
		}

		name := uf.Name
		if name == "" {
			name = entry.Name()
		}

		problems, err := loadProblems(subjectID, entry.Name(), unitDir)
		if err != nil {
			slog.Warn("failed to load problems", "subject", subjectID, "unit", entry.Name(), "error", err)
			continue
		}

		units = append(units, orderedUnit{
			unit: models.Unit{
				ID:          entry.Name(),
				Name:        name,
				Description: uf.Description,
				Order:       uf.Order,
			},
			problems: problems,
		})
	}

	sort.SliceStable(units, func(i, j int) bool {
		return less(units[i].unit.Order, units[i].unit.ID, units[j].unit.Order, units[j].unit.ID)
	})

	return units, nil
}

// loadProblems loads all problem YAML files of a unit directory
func loadProblems(subjectID, unitID, dir string) (*models.ProblemSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit dir: %w", err)
	}

	type orderedProblem struct {
		problem *models.Problem
		order   int
	}
	var problems []orderedProblem

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())) == "unit" {
			continue
		}

		p, order, err := loadProblem(subjectID, unitID, filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("failed to load problem", "file", entry.Name(), "error", err)
			continue
		}
		problems = append(problems, orderedProblem{problem: p, order: order})
	}

	sort.SliceStable(problems, func(i, j int) bool {
		return less(problems[i].order, problems[i].problem.ID, problems[j].order, problems[j].problem.ID)
	})

	ps := models.NewProblemSet()
	for _, p := range problems {
		ps.Add(p.problem)
	}
	return ps, nil
}

// loadProblem loads a single problem YAML file
func loadProblem(subjectID, unitID, path string) (*models.Problem, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read problem file: %w", err)
	}

	var pf problemFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, 0, fmt.Errorf("failed to parse problem YAML: %w", err)
	}

	// Use id from YAML, fall back to filename without extension
	id := pf.ID
	if id == "" {
		base := filepath.Base(path)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if pf.Prompt == "" {
		return nil, 0, fmt.Errorf("problem prompt is required")
	}

	return &models.Problem{
		ID:          id,
		Prompt:      pf.Prompt,
		StarterCode: pf.Starter,
		Metadata: models.ProblemMetadata{
			Title:      pf.Title,
			Hints:      pf.Hints,
			Difficulty: pf.Difficulty,
			SubjectID:  subjectID,
			UnitID:     unitID,
			Tags:       pf.Tags,
		},
	}, pf.Order, nil
}

func problemsKey(subjectID, unitID string) string {
	return subjectID + "/" + unitID
}

// less orders by explicit order, entries without one last, then by id
func less(oi int, idi string, oj int, idj string) bool {
	if oi != oj {
		if oi == 0 {
			return false
		}
		if oj == 0 {
			return true
		}
		return oi < oj
	}
	return idi < idj
}

// --- YAML file structs ---

type subjectFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
}

type unitFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
}

type problemFile struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Prompt     string   `yaml:"prompt"`
	Starter    string   `yaml:"starter"`
	Hints      []string `yaml:"hints"`
	Difficulty string   `yaml:"difficulty"`
	Tags       []string `yaml:"tags"`
	Order      int      `yaml:"order"`
}
