package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestReadListFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "listfile")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	doc := `; time series definition file, written on 2024-01-15T10:00:00Z
#<image path>
scene_one.tif

  scene_two.tif
/abs/scene_three.tif
https://example.com/scene_four.tif
; trailing comment
`
	path := filepath.Join(dir, "series.lst")
	if err := ioutil.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	uris, err := ReadListFile(path, 0)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	expected := []string{
		filepath.Join(dir, "scene_one.tif"),
		filepath.Join(dir, "scene_two.tif"),
		"/abs/scene_three.tif",
		"https://example.com/scene_four.tif",
	}
	if len(uris) != len(expected) {
		t.Fatalf("expected %d entries, actual %d: %v", len(expected), len(uris), uris)
	}
	for i := range expected {
		if uris[i] != expected[i] {
			t.Errorf("entry %d: expected %s, actual %s", i, expected[i], uris[i])
		}
	}

	uris, err = ReadListFile(path, 2)
	if err != nil {
		t.Fatalf("read list with cap: %v", err)
	}
	if len(uris) != 2 {
		t.Errorf("nMax cap: expected 2 entries, actual %d", len(uris))
	}
}

func TestWriteListFileRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "listfile")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "series.lst")
	uris := []string{
		filepath.Join(dir, "nested", "scene_one.tif"),
		"/elsewhere/scene_two.tif",
		"mem://scene_three",
	}
	if err := WriteListFile(path, uris, true); err != nil {
		t.Fatalf("write list: %v", err)
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if buf[0] != ';' {
		t.Errorf("list file must start with the comment header")
	}

	back, err := ReadListFile(path, 0)
	if err != nil {
		t.Fatalf("re-read list: %v", err)
	}
	if len(back) != len(uris) {
		t.Fatalf("expected %d entries, actual %d: %v", len(uris), len(back), back)
	}
	for i := range uris {
		if back[i] != uris[i] {
			t.Errorf("entry %d changed across the round trip: %s vs %s", i, uris[i], back[i])
		}
	}
}
