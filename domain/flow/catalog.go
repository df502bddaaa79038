package flow

import (
	"casework/session"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var builtinCatalog embed.FS

type catalogDocument struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description"`
	ShortCode   string                   `yaml:"shortCode"`
	Active      bool                     `yaml:"active"`
	Steps       []StepDefinitionCreation `yaml:"steps"`
	Transitions []OrderTransition        `yaml:"transitions"`
}

// LoadCatalog parses the built-in template definitions, sorted by file name.
func LoadCatalog() ([]TemplateCreation, error) {
	return loadCatalog(builtinCatalog, "catalog")
}

func loadCatalog(fsys fs.FS, dir string) ([]TemplateCreation, error) {
	files, err := fs.Glob(fsys, dir+"/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	r := []TemplateCreation{}
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		doc := catalogDocument{}
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if doc.Name == "" || len(doc.Steps) == 0 {
			return nil, fmt.Errorf("parse %s: name and steps are required", file)
		}
		r = append(r, TemplateCreation{Name: doc.Name, Description: doc.Description, ShortCode: doc.ShortCode,
			Active: doc.Active, Steps: doc.Steps, Transitions: doc.Transitions})
	}
	return r, nil
}

// SeedTemplates creates the catalog templates that do not exist yet and returns how many were created.
func (r *Registry) SeedTemplates(creations []TemplateCreation, s *session.Session) (int, error) {
	created := 0
	for i := range creations {
		existing, err := r.FindTemplateByName(s.Context, creations[i].Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			logrus.WithField("template", existing.Name).Debug("template already seeded")
			continue
		}
		if _, err := r.CreateTemplate(&creations[i], s); err != nil {
			return created, err
		}
		logrus.WithField("template", creations[i].Name).Info("template seeded")
		created++
	}
	return created, nil
}
