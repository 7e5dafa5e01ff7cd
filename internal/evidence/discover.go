package evidence

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Artifacts are the parser inputs found in an extracted triage tree.
// Empty fields were not found.
type Artifacts struct {
	MFT      string
	Amcache  string
	Security string
}

var errFound = errors.New("found")

// artifactNames maps lowercased file names onto the artifact they are.
var artifactNames = map[string]func(*Artifacts) *string{
	"$mft":          func(a *Artifacts) *string { return &a.MFT },
	"amcache.hve":   func(a *Artifacts) *string { return &a.Amcache },
	"security.evtx": func(a *Artifacts) *string { return &a.Security },
}

// FindArtifacts looks for the KAPE targets under root, trying KAPE/Triage,
// then Triage, then root itself. Directories named Parsed are not entered.
// The first match of each name wins.
func FindArtifacts(root string) Artifacts {
	var a Artifacts
	bases := []string{
		filepath.Join(root, "KAPE", "Triage"),
		filepath.Join(root, "Triage"),
		root,
	}
	for _, base := range bases {
		for name, field := range artifactNames {
			if p := field(&a); *p == "" {
				*p = findFirst(base, name)
			}
		}
	}
	return a
}

// findFirst walks base in lexical order and returns the first regular file
// whose lowercased name equals target.
func findFirst(base, target string) string {
	var found string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == base {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != base && d.Name() == "Parsed" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(d.Name()) == target && d.Type().IsRegular() {
			found = p
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return ""
	}
	return found
}
