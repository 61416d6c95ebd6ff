package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"toolwatch/internal/model"

	"gopkg.in/yaml.v3"
)

// DefaultEmailDomain is used for users derived from a raw identity label.
const DefaultEmailDomain = "utdallas.edu"

// ErrUnknownTool is returned when a tool class has no catalog record.
var ErrUnknownTool = errors.New("unknown tool class")

// DepthRange is an open interval (Min, Max) of averaged depth values.
type DepthRange struct {
	Drawer string `yaml:"drawer"`
	Min    int    `yaml:"min"`
	Max    int    `yaml:"max"`
}

// Contains reports whether Min < d < Max.
func (r DepthRange) Contains(d int) bool {
	return d > r.Min && d < r.Max
}

// DepthConfig maps depth samples to drawer identifiers.
type DepthConfig struct {
	// Unreliable is substituted for a missing sample.
	Unreliable int `yaml:"unreliable"`
	// MaxVariance bounds the spread of a raw sample window.
	MaxVariance float64      `yaml:"max_variance"`
	Right       []DepthRange `yaml:"right"`
	Left        []DepthRange `yaml:"left"`
}

// Catalog is the static configuration loaded once at startup.
type Catalog struct {
	EmailDomain string                `yaml:"email_domain"`
	Drawers     map[string]string     `yaml:"drawers"` // drawer identifier -> tool class
	Tools       map[string]model.Tool `yaml:"tools"`   // tool class -> record
	Users       map[string]model.User `yaml:"users"`   // identity label -> record
	Depth       DepthConfig           `yaml:"depth"`
}

// Default returns the catalog of the two-drawer workbench.
func Default() *Catalog {
	return &Catalog{
		EmailDomain: DefaultEmailDomain,
		Drawers: map[string]string{
			"drivers and bits": "ifixit",
			"clamps":           "clamp",
		},
		Tools: map[string]model.Tool{
			"ifixit": {
				ID:          "tool_5",
				Name:        "Drivers and Bits",
				Description: "Screwdriver set with various bits",
				ImageURL:    "https://picsum.photos/seed/tool5/500",
				Type:        "Tool",
				Cost:        29.99,
			},
			"clamp": {
				ID:          "tool_2",
				Name:        "Clamps",
				Description: "Various clamps for holding workpieces",
				ImageURL:    "https://picsum.photos/seed/tool2/500",
				Type:        "Tool",
				Cost:        34.99,
			},
		},
		Users: map[string]model.User{},
		Depth: DepthConfig{
			Unreliable:  1000,
			MaxVariance: 150,
			Right: []DepthRange{
				{Drawer: "sanding and scales", Min: 861, Max: 890},
				{Drawer: "clamps", Min: 841, Max: 860},
				{Drawer: "electrical and hot glue", Min: 826, Max: 840},
				{Drawer: "sockets and allen keys", Min: 801, Max: 825},
				{Drawer: "drivers and bits", Min: 780, Max: 800},
			},
			Left: []DepthRange{
				{Drawer: "drill and dremel", Min: 851, Max: 890},
				{Drawer: "measuring", Min: 841, Max: 850},
				{Drawer: "hammers", Min: 826, Max: 840},
				{Drawer: "pliers and cutters", Min: 801, Max: 825},
				{Drawer: "drivers and bits", Min: 780, Max: 800},
			},
		},
	}
}

// Load reads a YAML catalog. An empty path yields Default().
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if c.EmailDomain == "" {
		c.EmailDomain = DefaultEmailDomain
	}
	if c.Drawers == nil {
		c.Drawers = map[string]string{}
	}
	if c.Tools == nil {
		c.Tools = map[string]model.Tool{}
	}
	if c.Users == nil {
		c.Users = map[string]model.User{}
	}
	if c.Depth.Unreliable == 0 {
		c.Depth.Unreliable = Default().Depth.Unreliable
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks internal consistency.
func (c *Catalog) Validate() error {
	for drawer, class := range c.Drawers {
		if strings.TrimSpace(drawer) == "" {
			return errors.New("catalog: empty drawer identifier")
		}
		if strings.TrimSpace(class) == "" {
			return fmt.Errorf("catalog: drawer %q maps to empty tool class", drawer)
		}
	}
	for class, tool := range c.Tools {
		if tool.ID == "" {
			return fmt.Errorf("catalog: tool class %q has no id", class)
		}
	}
	for _, side := range [][]DepthRange{c.Depth.Left, c.Depth.Right} {
		for _, r := range side {
			if r.Min >= r.Max {
				return fmt.Errorf("catalog: depth range for %q is empty", r.Drawer)
			}
		}
	}
	return nil
}

// ToolClass resolves a drawer identifier to its tool class.
func (c *Catalog) ToolClass(drawer string) (string, bool) {
	class, ok := c.Drawers[drawer]
	return class, ok
}

// LookupTool returns the catalog record for a tool class.
func (c *Catalog) LookupTool(class string) (model.Tool, error) {
	tool, ok := c.Tools[class]
	if !ok {
		return model.Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, class)
	}
	return tool, nil
}

// Tool returns the record for a tool class, synthesising one from the class
// name when the catalog has none.
func (c *Catalog) Tool(class string) model.Tool {
	if tool, err := c.LookupTool(class); err == nil {
		return tool
	}
	return model.Tool{
		ID:          class,
		Name:        class,
		Description: class,
		ImageURL:    placeholderImage(class),
		Type:        class,
	}
}

// ToolCount is the number of distinct tools in the tool table.
func (c *Catalog) ToolCount() int {
	return len(c.ToolIDs())
}

// ToolIDs returns the distinct ids of every configured tool, sorted.
func (c *Catalog) ToolIDs() []string {
	seen := make(map[string]struct{}, len(c.Tools))
	ids := make([]string, 0, len(c.Tools))
	for _, t := range c.Tools {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

// ResolveUser maps an identity label to a user. Empty labels resolve to nothing.
func (c *Catalog) ResolveUser(label string) (model.User, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.User{}, false
	}
	if u, ok := c.Users[label]; ok {
		return u, true
	}
	return ParseUser(label, c.EmailDomain), true
}

// ParseUser derives a user from a "Name - id" label. Labels that do not split
// into exactly two parts are used verbatim as both name and id.
func ParseUser(label, emailDomain string) model.User {
	if emailDomain == "" {
		emailDomain = DefaultEmailDomain
	}

	name, id := label, label
	if parts := strings.Split(label, "-"); len(parts) == 2 {
		name = strings.TrimSpace(parts[0])
		id = strings.TrimSpace(parts[1])
	}

	return model.User{
		ID:       id,
		Name:     name,
		Email:    id + "@" + emailDomain,
		ImageURL: placeholderImage(id),
	}
}

func placeholderImage(seed string) string {
	return "https://picsum.photos/seed/" + seed + "/500"
}
