package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Time-series list files are plain UTF-8, one URI per line. Blank lines and
// lines starting with ';' or '#' are ignored; relative paths resolve against
// the file's directory.

// ReadListFile reads at most nMax source URIs (nMax <= 0 reads all).
func ReadListFile(path string, nMax int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var uris []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			continue
		}
		if !filepath.IsAbs(line) && !strings.Contains(line, "://") {
			line = filepath.Join(dir, line)
		}
		uris = append(uris, line)
		if nMax > 0 && len(uris) >= nMax {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return uris, nil
}

// WriteListFile writes a list file with the two-line comment header. With
// relative set, file URIs under the list file's directory are written as
// relative paths.
func WriteListFile(path string, uris []string, relative bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "; time series definition file, written on %s\n", time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintln(w, "#<image path>")

	dir := filepath.Dir(path)
	for _, uri := range uris {
		line := uri
		if relative && filepath.IsAbs(uri) && !strings.Contains(uri, "://") {
			if rel, err := filepath.Rel(dir, uri); err == nil && !strings.HasPrefix(rel, "..") {
				line = rel
			}
		}
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}
