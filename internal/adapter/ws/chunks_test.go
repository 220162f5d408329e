package ws

import "testing"

func TestChunkReassemblyInOrder(t *testing.T) {
	b := newChunkBuffer()

	for i, part := range []string{"aaa", "bbb", "ccc"} {
		payload, done, err := b.add("t1", i, 3, part)
		if err != nil {
			t.Fatal(err)
		}
		if i < 2 && done {
			t.Fatalf("chunk %d: premature completion", i)
		}
		if i == 2 {
			if !done {
				t.Fatal("final chunk must complete the transfer")
			}
			if payload != "aaabbbccc" {
				t.Errorf("bad payload %q", payload)
			}
		}
	}
}

func TestChunkReassemblyOutOfOrder(t *testing.T) {
	b := newChunkBuffer()

	parts := map[int]string{0: "aaa", 1: "bbb", 2: "ccc"}
	var payload string
	var done bool
	var err error
	for _, i := range []int{2, 0, 1} {
		payload, done, err = b.add("t1", i, 3, parts[i])
		if err != nil {
			t.Fatal(err)
		}
	}
	if !done {
		t.Fatal("all chunks present, transfer must complete")
	}
	if payload != "aaabbbccc" {
		t.Errorf("out-of-order result differs: %q", payload)
	}
}

func TestChunkBufferClearsAfterCompletion(t *testing.T) {
	b := newChunkBuffer()
	_, _, _ = b.add("t1", 0, 1, "solo")
	if _, ok := b.parts["t1"]; ok {
		t.Error("completed transfer must clear its buffer")
	}
}

func TestChunkBufferIsolatesTasks(t *testing.T) {
	b := newChunkBuffer()
	_, done, _ := b.add("t1", 0, 2, "a")
	if done {
		t.Fatal("t1 incomplete")
	}
	payload, done, err := b.add("t2", 0, 1, "z")
	if err != nil || !done || payload != "z" {
		t.Errorf("t2 transfer corrupted: %q %v %v", payload, done, err)
	}
}

func TestChunkRejectsBadIndexes(t *testing.T) {
	b := newChunkBuffer()
	cases := []struct {
		index, total int
	}{
		{0, 0},
		{-1, 3},
		{3, 3},
		{5, 2},
	}
	for _, c := range cases {
		if _, _, err := b.add("t1", c.index, c.total, "x"); err == nil {
			t.Errorf("index %d of %d: expected error", c.index, c.total)
		}
	}
}

func TestChunkDrop(t *testing.T) {
	b := newChunkBuffer()
	_, _, _ = b.add("t1", 0, 2, "a")
	b.drop("t1")

	// A fresh transfer starts clean after the drop.
	_, done, err := b.add("t1", 0, 2, "x")
	if err != nil || done {
		t.Errorf("restarted transfer misbehaved: %v %v", done, err)
	}
	payload, done, err := b.add("t1", 1, 2, "y")
	if err != nil || !done || payload != "xy" {
		t.Errorf("restarted transfer result: %q %v %v", payload, done, err)
	}
}
