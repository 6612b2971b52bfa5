package links

import "strings"

// DefinitionSet indexes a document's link definitions by name. Lookup is
// case-insensitive; when several definitions share a name the first
// occurrence wins.
type DefinitionSet struct {
	byName map[string]*Link
}

func NewDefinitionSet(ls []Link) *DefinitionSet {
	set := &DefinitionSet{byName: make(map[string]*Link)}
	for i := range ls {
		if ls[i].Kind != KindDefinition {
			continue
		}
		key := strings.ToLower(ls[i].Source.RefText)
		if _, ok := set.byName[key]; !ok {
			set.byName[key] = &ls[i]
		}
	}
	return set
}

func (s *DefinitionSet) Get(name string) (*Link, bool) {
	def, ok := s.byName[strings.ToLower(name)]
	return def, ok
}
