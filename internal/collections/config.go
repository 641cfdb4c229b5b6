// Package collections manages the document collections and the short codes
// that prefix their vector point keys.
package collections

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// UnknownCode is used for collections missing from the registry.
const UnknownCode = "C00"

var codePattern = regexp.MustCompile(`^C\d{2}$`)

// Collection describes a named document namespace.
type Collection struct {
	Name        string `yaml:"name"`
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

// Config is the top-level YAML structure.
type Config struct {
	Collections []Collection `yaml:"collections"`
}

// Registry holds loaded collections, keyed by name.
type Registry struct {
	byName map[string]*Collection
	order  []string // preserves definition order
}

// builtin is the deployed collection table.
var builtin = []Collection{
	{Name: "eastgodavaris", Code: "C01", Description: "East Godavari district"},
	{Name: "wgods", Code: "C02", Description: "West Godavari district"},
	{Name: "Prakasham_District", Code: "C03", Description: "Prakasam district"},
	{Name: "ntrs", Code: "C04", Description: "NTR district"},
	{Name: "Chitoor_District", Code: "C05", Description: "Chittoor district"},
	{Name: "apgovs", Code: "C06", Description: "Government of Andhra Pradesh"},
	{Name: "kakinadas", Code: "C07", Description: "Kakinada district"},
	{Name: "sitharamanrajus", Code: "C08", Description: "Alluri Sitharama Raju district"},
	{Name: "ankapallis", Code: "C09", Description: "Anakapalli district"},
	{Name: "bapatlas", Code: "C10", Description: "Bapatla district"},
	{Name: "Tirupati_District", Code: "C11", Description: "Tirupati district"},
	{Name: "visakhapatnams", Code: "C12", Description: "Visakhapatnam district"},
	{Name: "YSR_District", Code: "C13", Description: "YSR Kadapa district"},
	{Name: "Krishna_District", Code: "C14", Description: "Krishna district"},
	{Name: "nandyals", Code: "C15", Description: "Nandyal district"},
	{Name: "srikakulams", Code: "C16", Description: "Srikakulam district"},
	{Name: "andhraGov", Code: "C17", Description: "Andhra Pradesh state portal"},
	{Name: "Sri_Potti_Sriramulu_Nellore_District", Code: "C18", Description: "Sri Potti Sriramulu Nellore district"},
	{Name: "gunturs", Code: "C19", Description: "Guntur district"},
	{Name: "Eluru_District", Code: "C20", Description: "Eluru district"},
	{Name: "kurnool_district", Code: "C21", Description: "Kurnool district"},
	{Name: "srisathyasai_District", Code: "C22", Description: "Sri Sathya Sai district"},
	{Name: "annamayyas", Code: "C23", Description: "Annamayya district"},
	{Name: "Parvathipuram_Manyam_District", Code: "C24", Description: "Parvathipuram Manyam district"},
	{Name: "konaseemas", Code: "C25", Description: "Dr. B.R. Ambedkar Konaseema district"},
	{Name: "Vizianagaram_District", Code: "C26", Description: "Vizianagaram district"},
	{Name: "Ananthapuramu_District", Code: "C27", Description: "Anantapur district"},
}

// Defaults returns a registry holding the built-in collection table.
func Defaults() *Registry {
	r := &Registry{byName: make(map[string]*Collection, len(builtin))}
	for _, c := range builtin {
		r.put(c)
	}
	return r
}

// Load reads the YAML file at path on top of the built-in table. Entries
// with a known name replace the built-in one. A missing file or an empty
// path yields the defaults.
func Load(path string) (*Registry, error) {
	r := Defaults()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for _, c := range cfg.Collections {
		if c.Name == "" {
			return nil, fmt.Errorf("collection without a name (code %q)", c.Code)
		}
		if !codePattern.MatchString(c.Code) {
			return nil, fmt.Errorf("collection %s: invalid code %q", c.Name, c.Code)
		}
		r.put(c)
	}
	return r, nil
}

func (r *Registry) put(c Collection) {
	if _, exists := r.byName[c.Name]; !exists {
		r.order = append(r.order, c.Name)
	}
	cc := c
	r.byName[c.Name] = &cc
}

// Get returns a collection by name. Returns (nil, false) if not found.
func (r *Registry) Get(name string) (*Collection, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Code returns the point key code of a collection, UnknownCode if the
// collection is not registered.
func (r *Registry) Code(name string) string {
	if c, ok := r.byName[name]; ok {
		return c.Code
	}
	return UnknownCode
}

// All returns all collections in definition order.
func (r *Registry) All() []*Collection {
	result := make([]*Collection, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.byName[name])
	}
	return result
}

// Names returns a sorted list of collection names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}
