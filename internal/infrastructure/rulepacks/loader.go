package rulepacks

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// Catalog is the parsed content of a rule pack directory: every check
// definition plus the packs that bundle them. It is loaded once at
// startup and seeded into the database.
type Catalog struct {
	Checks []domain.CheckDefinition
	Packs  []domain.RulePack
}

type fileDoc struct {
	Checks []checkDoc `yaml:"checks"`
	Packs  []packDoc  `yaml:"packs"`
}

type checkDoc struct {
	Key          string `yaml:"key"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Severity     string `yaml:"severity"`
	HITL         bool   `yaml:"hitl"`
	ResolverHint string `yaml:"resolver_hint"`
}

type packDoc struct {
	Code   string         `yaml:"code"`
	Title  string         `yaml:"title"`
	Checks []packCheckDoc `yaml:"checks"`
}

type packCheckDoc struct {
	Key    string  `yaml:"key"`
	Weight float64 `yaml:"weight"`
}

// LoadDir reads every .yaml/.yml file under dir and merges them into one
// catalog. A check key or pack code defined twice across files is an
// error, and a pack may only reference checks the merged catalog defines.
func LoadDir(dir string) (*Catalog, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rule pack dir %s: %w", dir, err)
	}
	sort.Strings(files)

	catalog := &Catalog{}
	seenChecks := map[string]string{}
	seenPacks := map[string]string{}
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule pack file %s: %w", path, err)
		}
		var doc fileDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse rule pack file",
				fmt.Errorf("%s: %w", path, err))
		}

		for _, c := range doc.Checks {
			def := domain.CheckDefinition{
				Key:          c.Key,
				Title:        c.Title,
				Description:  c.Description,
				Severity:     domain.Severity(c.Severity),
				HITL:         c.HITL,
				ResolverHint: c.ResolverHint,
			}
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if prev, dup := seenChecks[def.Key]; dup {
				return nil, domain.WrapError(domain.ErrInvalidInput, "load rule packs",
					fmt.Errorf("check %s defined in both %s and %s", def.Key, prev, path))
			}
			seenChecks[def.Key] = path
			catalog.Checks = append(catalog.Checks, def)
		}

		for _, p := range doc.Packs {
			if p.Code == "" {
				return nil, domain.WrapError(domain.ErrInvalidInput, "load rule packs",
					fmt.Errorf("%s: pack with empty code", path))
			}
			if prev, dup := seenPacks[p.Code]; dup {
				return nil, domain.WrapError(domain.ErrInvalidInput, "load rule packs",
					fmt.Errorf("pack %s defined in both %s and %s", p.Code, prev, path))
			}
			seenPacks[p.Code] = path

			pack := domain.RulePack{Code: p.Code, Title: p.Title}
			for _, pc := range p.Checks {
				weight := pc.Weight
				if weight == 0 {
					weight = 1
				}
				pack.Checks = append(pack.Checks, domain.RulePackCheck{
					CheckKey: pc.Key,
					Weight:   weight,
				})
			}
			catalog.Packs = append(catalog.Packs, pack)
		}
	}

	if err := catalog.validateReferences(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Catalog) validateReferences() error {
	defined := make(map[string]struct{}, len(c.Checks))
	for _, d := range c.Checks {
		defined[d.Key] = struct{}{}
	}
	for _, p := range c.Packs {
		if len(p.Checks) == 0 {
			return domain.WrapError(domain.ErrInconsistentState, "load rule packs",
				fmt.Errorf("pack %s has no checks", p.Code))
		}
		for _, pc := range p.Checks {
			if _, ok := defined[pc.CheckKey]; !ok {
				return domain.WrapError(domain.ErrInconsistentState, "load rule packs",
					fmt.Errorf("pack %s references undefined check %s", p.Code, pc.CheckKey))
			}
		}
	}
	return nil
}

// Pack returns the pack with the given code.
func (c *Catalog) Pack(code string) (*domain.RulePack, bool) {
	for i := range c.Packs {
		if c.Packs[i].Code == code {
			return &c.Packs[i], true
		}
	}
	return nil, false
}
