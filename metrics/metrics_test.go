package metrics

import (
	"encoding/json"
	"os"
	"path"
	"strings"
	"testing"
)

type captureLogger struct {
	infos []*TaskInfo
}

func (l *captureLogger) Log(info *TaskInfo) {
	l.infos = append(l.infos, info)
}

func TestTaskInfoToJSON(t *testing.T) {
	info := &TaskInfo{
		ReqTime:    "2024-01-15T10:00:00Z",
		TaskID:     "profile-7",
		Kind:       "profile",
		NumSources: 12,
		Outcome:    "success",
	}
	out, err := info.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}

	var back TaskInfo
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.TaskID != "profile-7" || back.NumSources != 12 || back.Outcome != "success" {
		t.Errorf("record changed across a round trip: %+v", back)
	}
	if strings.Contains(out, "num_points") {
		t.Errorf("zero optional counters must be omitted: %s", out)
	}
}

func TestCollector(t *testing.T) {
	logger := &captureLogger{}
	c := NewCollector(logger)
	c.Info.TaskID = "ingest-3"
	c.Info.Kind = "ingest"
	c.Info.NumSources = 5
	c.Info.Outcome = "success"
	c.Log()

	if len(logger.infos) != 1 {
		t.Fatalf("expected one record, actual %d", len(logger.infos))
	}
	rec := logger.infos[0]
	if rec.TaskID != "ingest-3" || rec.NumSources != 5 {
		t.Errorf("record fields lost: %+v", rec)
	}
	if rec.Duration < 0 {
		t.Errorf("negative duration: %v", rec.Duration)
	}
	if len(rec.ReqTime) == 0 {
		t.Errorf("request time not stamped")
	}
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	logger := &FileLogger{LogDir: dir, MaxLogFileSize: 1, MaxLogFiles: 2}

	writeAndRotate := func(content string) {
		t.Helper()
		f, err := logger.openLogFile()
		if err != nil {
			t.Fatalf("open log: %v", err)
		}
		if _, err := f.WriteString(content); err != nil {
			t.Fatalf("write log: %v", err)
		}
		f, err = logger.tryRotateLogFile(f)
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		f.Close()
	}

	writeAndRotate("first\n")
	rotated, err := os.ReadFile(path.Join(dir, "tasks.log.0"))
	if err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	if string(rotated) != "first\n" {
		t.Errorf("rotated content: expected %q, actual %q", "first\n", string(rotated))
	}
	if _, err := os.Stat(path.Join(dir, "tasks.log")); !os.IsNotExist(err) {
		t.Errorf("active log must be renamed away on rotation")
	}

	writeAndRotate("second\n")
	if _, err := os.Stat(path.Join(dir, "tasks.log.1")); err != nil {
		t.Fatalf("second rotation slot missing: %v", err)
	}

	// Both slots taken; the next rotation overwrites the oldest.
	writeAndRotate("third\n")
	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var nRotated int
	for _, entry := range names {
		if strings.HasPrefix(entry.Name(), "tasks.log.") {
			nRotated++
		}
	}
	if nRotated != 2 {
		t.Errorf("expected 2 rotated files after overwrite, actual %d", nRotated)
	}
}

func TestFileLoggerBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	logger := &FileLogger{LogDir: dir, MaxLogFileSize: 1 << 20, MaxLogFiles: 2}

	f, err := logger.openLogFile()
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("small record\n"); err != nil {
		t.Fatalf("write log: %v", err)
	}
	same, err := logger.tryRotateLogFile(f)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if same != f {
		t.Errorf("file below the size threshold must not rotate")
	}
}

func TestCollectorNilLogger(t *testing.T) {
	c := NewCollector(nil)
	c.Info.Outcome = "success"
	c.Log()
}
