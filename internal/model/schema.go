package model

// Column describes one schema column. Order within a Schema is
// significant: it defines cell position in every Row.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Schema is an ordered sequence of columns with unique names.
type Schema []Column

// Clone copies the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the named column exists.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Intersection returns the columns present in both schemas by name,
// in the receiver's order.
func (s Schema) Intersection(other Schema) Schema {
	out := make(Schema, 0, len(s))
	for _, c := range s {
		if other.Has(c.Name) {
			out = append(out, c)
		}
	}
	return out
}
