package receipts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

// Category is one entry of the receipt taxonomy.
type Category struct {
	ID     string   `yaml:"id"`
	Labels []string `yaml:"labels"`
	Hint   string   `yaml:"hint"`
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// CategoryMapping resolves the model's free-text category guesses onto fixed
// category IDs. The mapping is many-to-one: both human-readable labels and
// the canonical slug map to the same ID.
type CategoryMapping struct {
	categories []Category
	byLabel    map[string]string
}

// LoadCategoryMapping parses the embedded taxonomy.
func LoadCategoryMapping() (*CategoryMapping, error) {
	return parseCategoryMapping(categoriesYAML)
}

func parseCategoryMapping(data []byte) (*CategoryMapping, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parseCategoryMapping: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("parseCategoryMapping: taxonomy is empty")
	}

	m := &CategoryMapping{
		categories: file.Categories,
		byLabel:    make(map[string]string),
	}
	for _, cat := range file.Categories {
		m.byLabel[strings.ToLower(cat.ID)] = cat.ID
		for _, label := range cat.Labels {
			m.byLabel[strings.ToLower(label)] = cat.ID
		}
	}
	return m, nil
}

// Map resolves a raw category string to its ID. Unknown categories pass
// through unmapped.
func (m *CategoryMapping) Map(raw string) string {
	if id, ok := m.byLabel[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return id
	}
	return raw
}

// Categories returns the taxonomy entries in file order.
func (m *CategoryMapping) Categories() []Category {
	return m.categories
}

// IDs returns the fixed category IDs in file order.
func (m *CategoryMapping) IDs() []string {
	ids := make([]string, len(m.categories))
	for i, cat := range m.categories {
		ids[i] = cat.ID
	}
	return ids
}
