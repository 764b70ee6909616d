package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SkillsDir holds one directory per skill, each with a SKILL.md.
const SkillsDir = "skills"

// SkillFile is the entry point of a skill directory.
const SkillFile = "SKILL.md"

// Skill is the frontmatter of a SKILL.md.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

var errNoFrontmatter = errors.New("missing YAML frontmatter")

// ParseSkill decodes the frontmatter block at the top of a SKILL.md.
func ParseSkill(data []byte) (Skill, error) {
	var s Skill
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		rest, ok = bytes.CutPrefix(data, []byte("---\r\n"))
	}
	if !ok {
		return s, errNoFrontmatter
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return s, errNoFrontmatter
	}
	if err := yaml.Unmarshal(rest[:end], &s); err != nil {
		return s, fmt.Errorf("frontmatter: %w", err)
	}
	return s, nil
}

// CheckSkills validates every skills/<name>/SKILL.md under dir: the
// frontmatter must carry a name and a description.
func CheckSkills(dir string) []error {
	entries, err := os.ReadDir(filepath.Join(dir, SkillsDir))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, SkillsDir, e.Name(), SkillFile)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("skill %s: %w", e.Name(), err))
			continue
		}
		s, err := ParseSkill(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("skill %s: %w", e.Name(), err))
			continue
		}
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("skill %s: frontmatter has no name", e.Name()))
		}
		if s.Description == "" {
			errs = append(errs, fmt.Errorf("skill %s: frontmatter has no description", e.Name()))
		}
	}
	return errs
}
