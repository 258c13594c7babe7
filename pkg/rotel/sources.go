// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"sort"
	"strings"
)

// SourceCatalog maps user-facing input names to the device's canonical names
type SourceCatalog struct {
	aliases map[string]string
	digital map[string]bool
}

var defaultSources = []string{
	"cd", "coax1", "coax2", "opt1", "opt2", "aux1", "aux2",
	"tuner", "phono", "usb", "pc_usb", "bal_xlr",
}

var defaultAliases = map[string]string{
	"xlr": "bal_xlr",
	"pc":  "pc_usb",
}

var defaultDigital = []string{"coax1", "coax2", "opt1", "opt2", "usb", "pc_usb"}

// DefaultCatalog returns the input set of the RA-series amplifiers
func DefaultCatalog() *SourceCatalog {
	c := &SourceCatalog{
		aliases: make(map[string]string),
		digital: make(map[string]bool),
	}
	for _, s := range defaultSources {
		c.aliases[s] = s
	}
	for alias, s := range defaultAliases {
		c.aliases[alias] = s
	}
	for _, s := range defaultDigital {
		c.digital[s] = true
	}
	return c
}

// Resolve returns the canonical source for a name or alias
func (c *SourceCatalog) Resolve(name string) (string, bool) {
	src, ok := c.aliases[strings.ToLower(strings.TrimSpace(name))]
	return src, ok
}

// IsDigital reports whether a canonical source carries a sample rate
func (c *SourceCatalog) IsDigital(source string) bool {
	return c.digital[source]
}

// IsKnown reports whether source is a canonical source name
func (c *SourceCatalog) IsKnown(source string) bool {
	src, ok := c.aliases[source]
	return ok && src == source
}

// Names returns the canonical source names in sorted order
func (c *SourceCatalog) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range c.aliases {
		if !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	sort.Strings(names)
	return names
}
