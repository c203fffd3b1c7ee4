package judge

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"contest_judge/internal/common"
	"contest_judge/internal/domain/model"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultCatalog []byte

type catalogFile struct {
	Languages []model.Language `yaml:"languages"`
}

// Catalog maps client-facing language ids to judge language ids. Ids are
// compared in slug form, so "Python3" and "python3" are the same language.
type Catalog struct {
	byID map[string]model.Language
}

// LoadCatalog reads a YAML catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read language catalog: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse language catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]model.Language, len(f.Languages))}
	for i, lang := range f.Languages {
		id := slug.Make(lang.ID)
		if id == "" {
			return nil, fmt.Errorf("language catalog entry %d: empty id", i)
		}
		if lang.JudgeLanguageID <= 0 {
			return nil, fmt.Errorf("language %s: judge_id must be positive", id)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("language %s listed twice", id)
		}
		lang.ID = id
		c.byID[id] = lang
	}
	return c, nil
}

// Lookup returns an active language. Unknown and inactive ids are both
// reported as bad requests.
func (c *Catalog) Lookup(id string) (model.Language, error) {
	lang, ok := c.byID[slug.Make(id)]
	if !ok {
		return model.Language{}, fmt.Errorf("unknown language %q: %w", id, common.ErrBadRequest)
	}
	if !lang.IsActive {
		return model.Language{}, fmt.Errorf("language %q is disabled: %w", id, common.ErrBadRequest)
	}
	return lang, nil
}

func (c *Catalog) Active() []model.Language {
	out := make([]model.Language, 0, len(c.byID))
	for _, l := range c.byID {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
