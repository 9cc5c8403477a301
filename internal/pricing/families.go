package pricing

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/families.yaml
var familiesYAML embed.FS

// FamilyMap holds the classification-family expansion table and the domain
// keyword list. Both are configuration data rather than source constants so
// the engine stays product-category agnostic.
type FamilyMap struct {
	Families map[string][]string `yaml:"families"`
	Keywords []string            `yaml:"keywords"`
}

// LoadFamilyMap reads the embedded families.yaml. An override path may be
// given for local experimentation; empty path uses the embedded copy.
func LoadFamilyMap(path string) (*FamilyMap, error) {
	data, err := familiesYAML.ReadFile("config/families.yaml")
	if path != "" {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var fm FamilyMap
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, err
	}
	if fm.Families == nil {
		fm.Families = map[string][]string{}
	}
	return &fm, nil
}

// Expand returns the related-family set for a classification code. Unmapped
// codes fall back to themselves only.
func (fm *FamilyMap) Expand(code string) []string {
	if related, ok := fm.Families[code]; ok && len(related) > 0 {
		return related
	}
	return []string{code}
}
