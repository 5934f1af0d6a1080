package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

type Catalogs struct {
	Items     ItemCatalog
	Buildings BuildingCatalog
	Recipes   RecipeCatalog
}

type ItemCatalog struct {
	ByID   map[string]ItemDef
	IDs    []string
	Digest string
}

type ItemDef struct {
	ID       string `json:"id"`
	MaxStack int    `json:"max_stack,omitempty"`
}

type BuildingCatalog struct {
	ByID   map[string]BuildingDef
	IDs    []string
	Digest string
}

type BuildingDef struct {
	ID       string `json:"id"`
	Passable bool   `json:"passable"`
	Size     [2]int `json:"size,omitempty"`

	// Natural objects (rock, trees) are mined rather than deconstructed.
	Minable    bool        `json:"minable,omitempty"`
	MineAmount float64     `json:"mine_amount,omitempty"`
	Drops      []ItemCount `json:"drops,omitempty"`

	Buildable bool        `json:"buildable,omitempty"`
	Materials []ItemCount `json:"materials,omitempty"`
	BuildWork float64     `json:"build_work,omitempty"`

	Workbench bool `json:"workbench,omitempty"`
}

// Footprint returns width and height, defaulting to a single cell.
func (d BuildingDef) Footprint() (int, int) {
	w, h := d.Size[0], d.Size[1]
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	IDs    []string
	Digest string
}

type RecipeDef struct {
	ID      string      `json:"id"`
	Bench   string      `json:"bench"`
	Inputs  []ItemCount `json:"inputs"`
	Outputs []ItemCount `json:"outputs"`
	Work    float64     `json:"work"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func Load(configDir string) (*Catalogs, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	var items []ItemDef
	var buildings []BuildingDef
	var recipes []RecipeDef
	var c Catalogs

	if c.Items.Digest, err = loadFile(filepath.Join(configDir, "items.json"), schemas["items"], &items); err != nil {
		return nil, err
	}
	if c.Buildings.Digest, err = loadFile(filepath.Join(configDir, "buildings.json"), schemas["buildings"], &buildings); err != nil {
		return nil, err
	}
	if c.Recipes.Digest, err = loadFile(filepath.Join(configDir, "recipes.json"), schemas["recipes"], &recipes); err != nil {
		return nil, err
	}

	out, err := FromDefs(items, buildings, recipes)
	if err != nil {
		return nil, err
	}
	out.Items.Digest = c.Items.Digest
	out.Buildings.Digest = c.Buildings.Digest
	out.Recipes.Digest = c.Recipes.Digest
	return out, nil
}

// FromDefs builds catalogs from in-memory definitions and cross-checks references.
// Digests are computed over the canonical JSON of the sorted definitions.
func FromDefs(items []ItemDef, buildings []BuildingDef, recipes []RecipeDef) (*Catalogs, error) {
	c := &Catalogs{
		Items:     ItemCatalog{ByID: map[string]ItemDef{}},
		Buildings: BuildingCatalog{ByID: map[string]BuildingDef{}},
		Recipes:   RecipeCatalog{ByID: map[string]RecipeDef{}},
	}
	for _, d := range items {
		if d.ID == "" {
			return nil, fmt.Errorf("items: empty id")
		}
		if _, dup := c.Items.ByID[d.ID]; dup {
			return nil, fmt.Errorf("items: duplicate id %s", d.ID)
		}
		c.Items.ByID[d.ID] = d
	}
	for _, d := range buildings {
		if d.ID == "" {
			return nil, fmt.Errorf("buildings: empty id")
		}
		if _, dup := c.Buildings.ByID[d.ID]; dup {
			return nil, fmt.Errorf("buildings: duplicate id %s", d.ID)
		}
		for _, ic := range append(append([]ItemCount{}, d.Drops...), d.Materials...) {
			if _, ok := c.Items.ByID[ic.Item]; !ok {
				return nil, fmt.Errorf("buildings: %s references unknown item %s", d.ID, ic.Item)
			}
		}
		if d.Minable && d.MineAmount <= 0 {
			return nil, fmt.Errorf("buildings: %s is minable but mine_amount <= 0", d.ID)
		}
		c.Buildings.ByID[d.ID] = d
	}
	for _, r := range recipes {
		if r.ID == "" {
			return nil, fmt.Errorf("recipes: empty id")
		}
		bench, ok := c.Buildings.ByID[r.Bench]
		if !ok || !bench.Workbench {
			return nil, fmt.Errorf("recipes: %s bench %q is not a workbench", r.ID, r.Bench)
		}
		for _, ic := range append(append([]ItemCount{}, r.Inputs...), r.Outputs...) {
			if _, ok := c.Items.ByID[ic.Item]; !ok {
				return nil, fmt.Errorf("recipes: %s references unknown item %s", r.ID, ic.Item)
			}
		}
		c.Recipes.ByID[r.ID] = r
	}

	c.Items.IDs = sortedKeys(c.Items.ByID)
	c.Buildings.IDs = sortedKeys(c.Buildings.ByID)
	c.Recipes.IDs = sortedKeys(c.Recipes.ByID)
	c.Items.Digest = digestOf(c.Items.IDs, c.Items.ByID)
	c.Buildings.Digest = digestOf(c.Buildings.IDs, c.Buildings.ByID)
	c.Recipes.Digest = digestOf(c.Recipes.IDs, c.Recipes.ByID)
	return c, nil
}

func (c *Catalogs) Item(id string) (ItemDef, bool) {
	d, ok := c.Items.ByID[id]
	return d, ok
}

func (c *Catalogs) Building(id string) (BuildingDef, bool) {
	d, ok := c.Buildings.ByID[id]
	return d, ok
}

func (c *Catalogs) Recipe(id string) (RecipeDef, bool) {
	d, ok := c.Recipes.ByID[id]
	return d, ok
}

// RecipesFor lists recipes craftable at a bench, sorted by id.
func (c *Catalogs) RecipesFor(bench string) []RecipeDef {
	var out []RecipeDef
	for _, id := range c.Recipes.IDs {
		if r := c.Recipes.ByID[id]; r.Bench == bench {
			out = append(out, r)
		}
	}
	return out
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	comp := jsonschema.NewCompiler()
	comp.Draft = jsonschema.Draft2020
	names := []string{"items", "buildings", "recipes"}
	for _, n := range names {
		b, err := schemaFS.ReadFile("schemas/" + n + ".schema.json")
		if err != nil {
			return nil, err
		}
		if err := comp.AddResource(schemaURL(n), strings.NewReader(string(b))); err != nil {
			return nil, fmt.Errorf("schema %s: %w", n, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := comp.Compile(schemaURL(n))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", n, err)
		}
		out[n] = s
	}
	return out, nil
}

func schemaURL(name string) string {
	return "https://colonysim.local/schemas/" + name + ".schema.json"
}

func loadFile(path string, schema *jsonschema.Schema, out any) (string, error) {
	name := filepath.Base(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return sha256Hex(raw), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func digestOf[V any](ids []string, m map[string]V) string {
	defs := make([]V, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, m[id])
	}
	b, _ := json.Marshal(defs)
	return sha256Hex(b)
}
