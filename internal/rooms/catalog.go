package rooms

import (
	"fmt"
	"strings"
)

// DefaultFaculties is the room catalog used when none is configured.
var DefaultFaculties = []string{
	"Mexanika-riyaziyyat fakültəsi",
	"Tətbiqi riyaziyyat və kibernetika fakültəsi",
	"Fizika fakültəsi",
	"Kimya fakültəsi",
	"Biologiya fakültəsi",
	"Ekologiya və torpaqşünaslıq fakültəsi",
	"Coğrafiya fakültəsi",
	"Geologiya fakültəsi",
	"Filologiya fakültəsi",
	"Tarix fakültəsi",
	"Beynəlxalq münasibətlər və iqtisadiyyat fakültəsi",
	"Hüquq fakültəsi",
	"Jurnalistika fakültəsi",
	"İnformasiya və sənəd menecmenti fakültəsi",
	"Şərqşünaslıq fakültəsi",
	"Sosial elmlər və psixologiya fakültəsi",
}

// Catalog is the fixed set of faculty room names. It is immutable after
// construction and safe for concurrent reads.
type Catalog struct {
	names []string
	index map[string]struct{}
}

func NewCatalog(names []string) *Catalog {
	if len(names) == 0 {
		names = DefaultFaculties
	}
	c := &Catalog{index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := c.index[name]; dup {
			continue
		}
		c.index[name] = struct{}{}
		c.names = append(c.names, name)
	}
	return c
}

func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns the catalog in configured order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// FacultyKey is the broadcast key of a faculty room.
func FacultyKey(name string) string {
	return "faculty-" + name
}

// ChannelKey is the canonical private channel of two identities. Both
// participants derive the same key regardless of argument order.
func ChannelKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("private-%d-%d", a, b)
}
