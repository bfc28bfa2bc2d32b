package segcache

import (
	"os"
	"testing"
)

func testKey(tag Tag) Key {
	return Key{
		CanonicalPath: "/media/show.mkv",
		HasStat:       true,
		ModTimeUnix:   1700000000,
		SizeBytes:     123456,
		SampleRate:    8000,
		DurationSec:   300,
		HasDuration:   true,
		OffsetSec:     0,
		Tag:           tag,
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	c := OpenAt(t.TempDir())
	key := testKey(TagStart)

	buf := make([]float32, 8000)
	for i := range buf {
		buf[i] = float32(i%200) / 200.0
	}

	if _, ok := c.Get(key); ok {
		t.Fatal("expected cache miss before Put")
	}

	c.Put(key, buf)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if len(got) != len(buf) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(buf))
	}
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("sample %d: got %v want %v", i, got[i], buf[i])
		}
	}
}

func TestDifferentKeysDoNotCollide(t *testing.T) {
	c := OpenAt(t.TempDir())
	k1 := testKey(TagStart)
	k2 := testKey(TagEnd)

	c.Put(k1, []float32{1, 2, 3})
	c.Put(k2, []float32{9, 9, 9})

	got1, ok := c.Get(k1)
	if !ok || got1[0] != 1 {
		t.Fatalf("k1 collided: got %v", got1)
	}
	got2, ok := c.Get(k2)
	if !ok || got2[0] != 9 {
		t.Fatalf("k2 collided: got %v", got2)
	}
}

func TestCorruptedEntryReturnsAbsent(t *testing.T) {
	dir := t.TempDir()
	c := OpenAt(dir)
	key := testKey(TagStart)
	c.Put(key, []float32{1, 2, 3})

	p := c.path(key)
	if err := os.WriteFile(p, []byte("not a zstd frame"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(key); ok {
		t.Fatal("expected corrupted entry to be reported absent")
	}
}
