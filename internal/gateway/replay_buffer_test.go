package gateway

import "testing"

func TestReplayBuffer_After(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.After(6)
	if len(got) != 4 {
		t.Fatalf("After(6): expected 4, got %d", len(got))
	}
	for i, e := range got {
		expected := int64(i) + 7
		if e.Seq != expected {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, expected)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// Push 8 entries, the first 3 are evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got := rb.After(0)
	if len(got) != 5 {
		t.Fatalf("After(0): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 {
		t.Errorf("oldest entry seq = %d, want 4", got[0].Seq)
	}
	if got[4].Seq != 8 {
		t.Errorf("newest entry seq = %d, want 8", got[4].Seq)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'
	if got := string(rb.After(0)[0].Data); got != "abc" {
		t.Errorf("buffer aliased caller slice: %q", got)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.After(0); len(got) != 0 {
		t.Fatalf("empty buffer After should return 0, got %d", len(got))
	}
}
