package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/adkhex/audiosync/internal/models"
)

func TestEmitterOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf)

	pair := models.Pair{PrimaryPath: "v.mp4", SecondaryPath: "a.wav"}
	e.FileStart(pair)
	delay := 12.5
	e.Result(models.Result{VideoFile: "v.mp4", AudioFile: "a.wav", StartDelayMs: &delay})
	e.Done([]models.Result{{VideoFile: "v.mp4", AudioFile: "a.wav", StartDelayMs: &delay}})

	scanner := bufio.NewScanner(&buf)
	var types []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		types = append(types, ev.Type)
	}
	want := []string{"file_start", "result", "done"}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestEmitterDoneAlwaysReachedEvenWithErrors(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf)
	e.Done([]models.Result{{VideoFile: "v.mp4", AudioFile: "a.wav", Error: "Insufficient audio at start for analysis."}})

	var ev Event
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "done" {
		t.Fatalf("ev.Type = %q, want done", ev.Type)
	}
}
