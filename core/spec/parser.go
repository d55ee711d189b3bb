// Package spec loads the catalog of video templates a job can request.
package spec

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateID is used when a job names no template or an unknown one.
const DefaultTemplateID = "tech_minimal"

// DefaultCaptionStyle is the ASS force_style applied to burned-in captions.
const DefaultCaptionStyle = "FontName=Arial,FontSize=24,PrimaryColour=&H00FFFFFF,BackColour=&H80000000,BorderStyle=1,Outline=2"

//go:embed templates.yaml
var defaultCatalog []byte

// TemplateCatalog represents the YAML template file
type TemplateCatalog struct {
	Templates []Template `yaml:"templates"`
}

// Template controls the look of the assembled video
type Template struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	Color        string        `yaml:"color" json:"color"`
	IntroText    string        `yaml:"intro_text" json:"introText"`
	OutroText    string        `yaml:"outro_text" json:"outroText"`
	ClipDuration time.Duration `yaml:"clip_duration" json:"clipDuration"`
	CaptionStyle string        `yaml:"caption_style" json:"captionStyle"`
}

// Catalog is an immutable lookup of templates by id.
type Catalog struct {
	byID map[string]Template
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in template catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML template definitions and fills defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file TemplateCatalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("template catalog is empty")
	}

	c := &Catalog{byID: make(map[string]Template, len(file.Templates))}
	for i, t := range file.Templates {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("template %d: missing id", i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("template %q defined twice", t.ID)
		}
		if t.Name == "" {
			t.Name = titleFromID(t.ID)
		}
		if t.Color == "" {
			t.Color = "black"
		}
		if t.ClipDuration <= 0 {
			t.ClipDuration = 3 * time.Second
		}
		if t.CaptionStyle == "" {
			t.CaptionStyle = DefaultCaptionStyle
		}
		c.byID[t.ID] = t
	}
	return c, nil
}

// Lookup returns the template for id, falling back to the default template
// and then to any template so the pipeline always has one.
func (c *Catalog) Lookup(id string) Template {
	if t, ok := c.byID[strings.TrimSpace(id)]; ok {
		return t
	}
	if t, ok := c.byID[DefaultTemplateID]; ok {
		return t
	}
	all := c.All()
	return all[0]
}

// Has reports whether id names a known template.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns templates ordered by id.
func (c *Catalog) All() []Template {
	out := make([]Template, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Intro renders the intro card text for appName.
func (t Template) Intro(appName string) string {
	return render(t.IntroText, appName)
}

// Outro renders the outro card text for appName.
func (t Template) Outro(appName string) string {
	return render(t.OutroText, appName)
}

func render(text, appName string) string {
	if text == "" {
		return appName
	}
	return strings.ReplaceAll(text, "{app}", appName)
}

// titleFromID turns social_viral into "Social Viral".
func titleFromID(id string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(id, "_", " "))
}
