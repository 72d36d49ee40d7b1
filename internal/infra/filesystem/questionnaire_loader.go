// Package filesystem loads canned questionnaires from a directory of JSON files.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"live-quiz-service/internal/domain"
)

// QuestionnaireLoader reads <dir>/<name>.json. A file holds either a bare question array
// or an object with a title and a questions array.
type QuestionnaireLoader struct {
	fsys fs.FS
}

func NewQuestionnaireLoader(dir string) *QuestionnaireLoader {
	return &QuestionnaireLoader{fsys: os.DirFS(dir)}
}

// NewQuestionnaireLoaderFS is for embedded or in-memory file systems.
func NewQuestionnaireLoaderFS(fsys fs.FS) *QuestionnaireLoader {
	return &QuestionnaireLoader{fsys: fsys}
}

func (l *QuestionnaireLoader) LoadQuestionnaire(_ context.Context, name string) (domain.Questionnaire, error) {
	if !validName(name) {
		return domain.Questionnaire{}, fmt.Errorf("%w: questionnaire name %q", domain.ErrValidation, name)
	}
	raw, err := fs.ReadFile(l.fsys, name+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Questionnaire{}, fmt.Errorf("%w: questionnaire %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("read questionnaire %q: %w", name, err)
	}
	title, questions, err := domain.ParseQuestionnaire(raw)
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("questionnaire %q: %w", name, err)
	}
	if title == "" {
		title = name
	}
	return domain.Questionnaire{Name: name, Title: title, Questions: questions}, nil
}

// Names lists the available questionnaires, sorted.
func (l *QuestionnaireLoader) Names() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// validName keeps lookups inside the directory.
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	return fs.ValidPath(name)
}
