// Package models - Label tables mapping model class indices to names.
package models

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is a label table loaded once and read-only afterwards.
type OutputClassSet struct {
	// Classes in model index order.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set from names, index = position.
func NewOutputClassSet(names []string) *OutputClassSet {
	s := &OutputClassSet{Classes: make([]OutputClass, len(names))}
	for i, n := range names {
		s.Classes[i] = OutputClass{Index: i, Name: n}
	}
	s.BuildNameIndexMap()
	return s
}

// ParseClasses reads a newline-delimited label table. Line N holds the name of class N.
//
// Surrounding whitespace is trimmed and trailing blank lines are ignored; blank lines in
// the middle keep their index so later labels do not shift.
//
// Arguments:
//   - r: The label text.
//
// Returns:
//   - *OutputClassSet: The table.
//   - error: If reading fails.
func ParseClasses(r io.Reader) (*OutputClassSet, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return NewOutputClassSet(names), nil
}

// LoadClasses reads a label table from a file.
func LoadClasses(path string) (*OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open labels %s", path)
	}
	defer f.Close()

	set, err := ParseClasses(f)
	if err != nil {
		return nil, errors.Wrapf(err, "labels %s", path)
	}
	return set, nil
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := s.nameToIdx[c.Name]; !dup {
			s.nameToIdx[c.Name] = c.Index
		}
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Classes)
}

// Name returns the label for idx, false when idx is out of range.
func (s *OutputClassSet) Name(idx int) (string, bool) {
	if s == nil || idx < 0 || idx >= len(s.Classes) {
		return "", false
	}
	return s.Classes[idx].Name, true
}

// Index returns the class index for a name, or -1 and an error when unknown.
func (s *OutputClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found", name)
	}
	return idx, nil
}
