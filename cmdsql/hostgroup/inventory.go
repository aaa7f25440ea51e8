package hostgroup

import (
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// Inventory maps group names to host aliases. It is read from an INI file
// where every section is a group and every key's value is a host alias:
//
//	[web]
//	web1 = web1.example.com
//	web2 = web2.example.com
type Inventory struct {
	groups map[string][]string
}

// LoadInventory reads an INI host file.
func LoadInventory(path string) (*Inventory, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load hosts file %s: %w", path, err)
	}

	inv := &Inventory{groups: make(map[string][]string)}
	for _, section := range cfg.Sections() {
		name := section.Name()
		for _, key := range section.Keys() {
			if key.String() == "" {
				continue
			}
			inv.groups[name] = append(inv.groups[name], key.String())
		}
	}
	return inv, nil
}

// NewInventory builds an inventory from a literal map, mostly for tests.
func NewInventory(groups map[string][]string) *Inventory {
	inv := &Inventory{groups: make(map[string][]string, len(groups))}
	for name, hosts := range groups {
		inv.groups[name] = append([]string(nil), hosts...)
	}
	return inv
}

// Group returns a HostGroup for name.
func (inv *Inventory) Group(name string) (*HostGroup, error) {
	if inv == nil {
		return nil, fmt.Errorf("no hosts file configured, cannot resolve group %q", name)
	}
	hosts, ok := inv.groups[name]
	if !ok || len(hosts) == 0 {
		return nil, fmt.Errorf("unknown host group %q", name)
	}
	return NewHostGroup(hosts...), nil
}

// Names lists the group names in sorted order.
func (inv *Inventory) Names() []string {
	if inv == nil {
		return nil
	}
	names := make([]string, 0, len(inv.groups))
	for name, hosts := range inv.groups {
		if len(hosts) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
