// Package corpus enumerates DSX files under an export directory
// (spec §12.1): *.dsx files, extensionless files, and one level of
// subdirectories, filtering out anything that doesn't look like a DSX
// export by its first few lines.
//
// Adapted from original_source/dsx_parser.py's DSXParser.scan_directory
// and job_index.py's build_index_from_directory file enumeration.
package corpus

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Discover walks directory and returns every file that looks like a
// DSX export: files named *.dsx, extensionless files, and the same two
// patterns one level into each subdirectory. Files failing the
// BEGIN HEADER/BEGIN DSJOB header sniff are excluded.
func Discover(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			subEntries, err := os.ReadDir(filepath.Join(directory, entry.Name()))
			if err != nil {
				continue
			}
			for _, sub := range subEntries {
				if sub.IsDir() {
					continue
				}
				path := filepath.Join(directory, entry.Name(), sub.Name())
				if looksLikeDSXCandidate(sub.Name()) && looksLikeDSX(path) {
					files = append(files, path)
				}
			}
			continue
		}

		path := filepath.Join(directory, entry.Name())
		if looksLikeDSXCandidate(entry.Name()) && looksLikeDSX(path) {
			files = append(files, path)
		}
	}

	return files, nil
}

func looksLikeDSXCandidate(name string) bool {
	return strings.HasSuffix(name, ".dsx") || filepath.Ext(name) == ""
}

// looksLikeDSX sniffs the first five lines for BEGIN HEADER/BEGIN
// DSJOB, matching §6's directory-enumeration skip rule.
func looksLikeDSX(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var head strings.Builder
	for i := 0; i < 5 && scanner.Scan(); i++ {
		head.WriteString(scanner.Text())
		head.WriteString("\n")
	}

	text := head.String()
	return strings.Contains(text, "BEGIN HEADER") || strings.Contains(text, "BEGIN DSJOB")
}
