// Package catalog holds the compiled fallback tables: which options every
// (group, attribute, tier) unlocks, their display labels, and the class to
// weapon-type affinity table.
//
// The data lives in catalog.yaml, embedded at build time and parsed once.
// A *Catalog is read-only after construction; every accessor hands out copies,
// so callers may keep or modify what they receive.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"scholaverse/tier"
)

//go:embed catalog.yaml
var embedded []byte

// Driver names the score that selects an attribute's tier.
type Driver string

const (
	DriverQuiz     Driver = "quiz"
	DriverHomework Driver = "homework"
)

// Entry is the option list unlocked at one tier, with a label for every option.
type Entry struct {
	Options []string          `json:"options"`
	Labels  map[string]string `json:"labels"`
}

// AttributeInfo describes how an attribute is resolved.
type AttributeInfo struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Driver    Driver `json:"driver"`
	// FilterByClass marks attributes narrowed by the chosen class's weapon affinity.
	FilterByClass bool `json:"filter_by_class,omitempty"`
}

type GroupInfo struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Display    string   `json:"display"`
	WeekStart  int      `json:"week_start"`
	WeekEnd    int      `json:"week_end"`
	Attributes []string `json:"attributes"`
}

// Rule is one flattened catalog cell, used to seed the override store.
type Rule struct {
	Group     string
	Attribute string
	Tier      tier.Tier
	SortOrder int
	Entry     Entry
}

type attribute struct {
	info   AttributeInfo
	tiers  map[tier.Tier][]string
	labels map[string]string
}

type group struct {
	info       GroupInfo
	attributes []*attribute
	byName     map[string]*attribute
}

type Catalog struct {
	groups   []*group
	byCode   map[string]*group
	affinity map[string][]string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog parsed from the embedded data.
// It panics if the embedded data is invalid, which is a build defect.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embedded)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded data invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

type yamlDocument struct {
	Groups   []yamlGroup         `yaml:"groups"`
	Affinity map[string][]string `yaml:"affinity"`
}

type yamlGroup struct {
	Code       string          `yaml:"code"`
	Name       string          `yaml:"name"`
	Display    string          `yaml:"display"`
	WeekStart  int             `yaml:"week_start"`
	WeekEnd    int             `yaml:"week_end"`
	Attributes []yamlAttribute `yaml:"attributes"`
}

type yamlAttribute struct {
	Name      string              `yaml:"name"`
	SortOrder int                 `yaml:"sort_order"`
	Driver    string              `yaml:"driver"`
	Affinity  string              `yaml:"affinity"`
	Uniform   []string            `yaml:"uniform"`
	Tiers     map[string][]string `yaml:"tiers"`
	Labels    map[string]string   `yaml:"labels"`
}

// Load parses and validates catalog YAML. Unknown keys are rejected.
func Load(data []byte) (*Catalog, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		byCode:   make(map[string]*group, len(doc.Groups)),
		affinity: make(map[string][]string, len(doc.Affinity)),
	}
	seenAttr := make(map[string]string)
	for _, yg := range doc.Groups {
		code := strings.TrimSpace(yg.Code)
		if code == "" {
			return nil, fmt.Errorf("group without code")
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate group %q", code)
		}
		g := &group{
			info: GroupInfo{
				Code:      code,
				Name:      yg.Name,
				Display:   yg.Display,
				WeekStart: yg.WeekStart,
				WeekEnd:   yg.WeekEnd,
			},
			byName: make(map[string]*attribute, len(yg.Attributes)),
		}
		for _, ya := range yg.Attributes {
			a, err := buildAttribute(code, ya)
			if err != nil {
				return nil, err
			}
			if owner, dup := seenAttr[a.info.Name]; dup {
				return nil, fmt.Errorf("attribute %q declared by both %s and %s", a.info.Name, owner, code)
			}
			seenAttr[a.info.Name] = code
			g.attributes = append(g.attributes, a)
			g.byName[a.info.Name] = a
		}
		sort.SliceStable(g.attributes, func(i, j int) bool {
			return g.attributes[i].info.SortOrder < g.attributes[j].info.SortOrder
		})
		for _, a := range g.attributes {
			g.info.Attributes = append(g.info.Attributes, a.info.Name)
		}
		c.groups = append(c.groups, g)
		c.byCode[code] = g
	}

	for class, weapons := range doc.Affinity {
		class = strings.TrimSpace(class)
		if class == "" || len(weapons) == 0 {
			return nil, fmt.Errorf("affinity entry %q is empty", class)
		}
		c.affinity[class] = append([]string(nil), weapons...)
	}
	return c, nil
}

func buildAttribute(groupCode string, ya yamlAttribute) (*attribute, error) {
	name := strings.TrimSpace(ya.Name)
	if name == "" {
		return nil, fmt.Errorf("group %s: attribute without name", groupCode)
	}
	a := &attribute{
		info: AttributeInfo{
			Name:      name,
			SortOrder: ya.SortOrder,
			Driver:    DriverQuiz,
		},
		tiers:  make(map[tier.Tier][]string, 5),
		labels: make(map[string]string, len(ya.Labels)),
	}
	switch Driver(ya.Driver) {
	case "", DriverQuiz:
	case DriverHomework:
		a.info.Driver = DriverHomework
	default:
		return nil, fmt.Errorf("%s.%s: unknown driver %q", groupCode, name, ya.Driver)
	}
	switch ya.Affinity {
	case "":
	case "class":
		a.info.FilterByClass = true
	default:
		return nil, fmt.Errorf("%s.%s: unknown affinity %q", groupCode, name, ya.Affinity)
	}
	for k, v := range ya.Labels {
		a.labels[k] = v
	}

	if len(ya.Uniform) > 0 {
		if len(ya.Tiers) > 0 {
			return nil, fmt.Errorf("%s.%s: uniform and tiers are exclusive", groupCode, name)
		}
		for _, t := range tier.All() {
			a.tiers[t] = append([]string(nil), ya.Uniform...)
		}
	} else {
		for raw, opts := range ya.Tiers {
			t, err := tier.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", groupCode, name, err)
			}
			a.tiers[t] = append([]string(nil), opts...)
		}
	}

	for _, t := range tier.All() {
		opts, ok := a.tiers[t]
		if !ok || len(opts) == 0 {
			return nil, fmt.Errorf("%s.%s: no options for tier %s", groupCode, name, t)
		}
		for _, key := range opts {
			if _, ok := a.labels[key]; !ok {
				return nil, fmt.Errorf("%s.%s: option %q has no label", groupCode, name, key)
			}
		}
	}
	return a, nil
}

func (c *Catalog) HasGroup(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Groups lists every group in declaration order.
func (c *Catalog) Groups() []GroupInfo {
	out := make([]GroupInfo, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, copyGroupInfo(g.info))
	}
	return out
}

func (c *Catalog) Group(code string) (GroupInfo, bool) {
	g, ok := c.byCode[code]
	if !ok {
		return GroupInfo{}, false
	}
	return copyGroupInfo(g.info), true
}

// Attributes returns the group's attributes ordered by sort order.
// Unknown groups yield nil.
func (c *Catalog) Attributes(code string) []AttributeInfo {
	g, ok := c.byCode[code]
	if !ok {
		return nil
	}
	out := make([]AttributeInfo, 0, len(g.attributes))
	for _, a := range g.attributes {
		out = append(out, a.info)
	}
	return out
}

func (c *Catalog) Attribute(groupCode, name string) (AttributeInfo, bool) {
	a := c.lookup(groupCode, name)
	if a == nil {
		return AttributeInfo{}, false
	}
	return a.info, true
}

// Entry returns the options unlocked for (group, attribute, tier) with labels
// restricted to those options.
func (c *Catalog) Entry(groupCode, name string, t tier.Tier) (Entry, bool) {
	a := c.lookup(groupCode, name)
	if a == nil {
		return Entry{}, false
	}
	opts, ok := a.tiers[t]
	if !ok {
		return Entry{}, false
	}
	e := Entry{
		Options: append([]string(nil), opts...),
		Labels:  make(map[string]string, len(opts)),
	}
	for _, key := range opts {
		e.Labels[key] = a.labels[key]
	}
	return e, true
}

func (c *Catalog) Label(groupCode, name, key string) (string, bool) {
	a := c.lookup(groupCode, name)
	if a == nil {
		return "", false
	}
	label, ok := a.labels[key]
	return label, ok
}

// Affinity returns the weapon types a class may use, in preference order.
func (c *Catalog) Affinity(class string) ([]string, bool) {
	weapons, ok := c.affinity[class]
	if !ok {
		return nil, false
	}
	return append([]string(nil), weapons...), true
}

// Rules flattens the catalog into one record per (group, attribute, tier),
// ordered by group, sort order, then tier.
func (c *Catalog) Rules() []Rule {
	var out []Rule
	for _, g := range c.groups {
		for _, a := range g.attributes {
			for _, t := range tier.All() {
				e, _ := c.Entry(g.info.Code, a.info.Name, t)
				out = append(out, Rule{
					Group:     g.info.Code,
					Attribute: a.info.Name,
					Tier:      t,
					SortOrder: a.info.SortOrder,
					Entry:     e,
				})
			}
		}
	}
	return out
}

func (c *Catalog) lookup(groupCode, name string) *attribute {
	g, ok := c.byCode[groupCode]
	if !ok {
		return nil
	}
	return g.byName[name]
}

func copyGroupInfo(in GroupInfo) GroupInfo {
	in.Attributes = append([]string(nil), in.Attributes...)
	return in
}
