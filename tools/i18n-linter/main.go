// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks the message catalogs against the code. It scans the Go
// sources for i18n.T("id") calls and reports ids missing from the English
// catalog, English ids no code uses, and ids other catalogs lack.
//
// Run it from the repository root:
//
//	go run ./tools/i18n-linter
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
	projectRoot   = "."
)

var callRe = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// report is the outcome of one lint pass. Every slice is sorted.
type report struct {
	Used       int
	Missing    []string
	Orphaned   []string
	Incomplete map[string][]string
}

func (r report) failed() bool {
	return len(r.Missing) > 0 || len(r.Incomplete) > 0
}

func main() {
	rep, err := lint(projectRoot, localesDir)
	if err != nil {
		fmt.Printf("i18n-linter: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("%d message ids used in code\n", rep.Used)
	for _, id := range rep.Missing {
		fmt.Printf("  missing in %s: %s\n", primaryLocale, id)
	}
	for _, id := range rep.Orphaned {
		fmt.Printf("  unused: %s\n", id)
	}
	for file, ids := range rep.Incomplete {
		for _, id := range ids {
			fmt.Printf("  missing in %s: %s\n", file, id)
		}
	}
	if rep.failed() {
		os.Exit(1)
	}
	fmt.Println("catalogs are consistent")
}

func lint(root, locales string) (report, error) {
	used, err := findUsedKeys(root)
	if err != nil {
		return report{}, err
	}
	primary, err := loadKeysFromLocale(filepath.Join(locales, primaryLocale))
	if err != nil {
		return report{}, err
	}
	rep := report{Used: len(used), Incomplete: map[string][]string{}}
	rep.Missing = difference(used, primary)
	rep.Orphaned = difference(primary, used)

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return report{}, err
	}
	for _, file := range files {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(file)
		if err != nil {
			return report{}, err
		}
		if missing := difference(primary, keys); len(missing) > 0 {
			rep.Incomplete[filepath.Base(file)] = missing
		}
	}
	return rep, nil
}

// difference returns the keys of a that are not in b, sorted.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// findUsedKeys scans the non-test Go files below root for i18n.T calls.
// The tools tree is skipped.
func findUsedKeys(root string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); path != root && (name == "tools" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range callRe.FindAllStringSubmatch(string(content), -1) {
			keys[m[1]] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// loadKeysFromLocale returns the message ids of a catalog. Nested maps are
// flattened to dotted ids.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAML(next, val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}
