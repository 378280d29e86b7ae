package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextYieldsSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("a short rubric")
	if len(chunks) != 1 || chunks[0] != "a short rubric" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
}

func TestSplitEmptyTextYieldsNoChunks(t *testing.T) {
	s := NewSplitter(100, 20)
	if chunks := s.Split(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
	if chunks := s.Split("   \n\t "); len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace, got %v", chunks)
	}
}

func TestSplitWindowsOverlap(t *testing.T) {
	s := NewSplitter(10, 4)
	text := strings.Repeat("abcdefghij", 3)
	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	// Step is size-overlap=6, so each chunk restarts 4 runes inside the
	// previous one.
	if chunks[0][6:10] != chunks[1][0:4] {
		t.Fatalf("missing overlap between %q and %q", chunks[0], chunks[1])
	}
	for _, c := range chunks {
		if len([]rune(c)) > 10 {
			t.Fatalf("chunk exceeds window: %q", c)
		}
	}
}

func TestNewSplitterNormalizesDegenerateSettings(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.ChunkSize != 800 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap >= s.ChunkSize {
		t.Fatalf("overlap %d not reduced below chunk size %d", s.Overlap, s.ChunkSize)
	}
}

func TestSplitHandlesMultibyteRunes(t *testing.T) {
	s := NewSplitter(4, 0)
	chunks := s.Split("日本語のテキスト")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
	if chunks[0] != "日本語の" || chunks[1] != "テキスト" {
		t.Fatalf("unexpected rune windows %v", chunks)
	}
}
