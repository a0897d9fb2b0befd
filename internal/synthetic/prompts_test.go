package synthetic

import "testing"

func TestNextExhaustsPoolBeforeRepeating(t *testing.T) {
	s := NewSource()

	seen := make(map[string]bool)
	for range len(promptPool) {
		prompt, tools := s.Next()
		if prompt == "" {
			t.Fatal("empty prompt")
		}
		if len(tools) == 0 {
			t.Fatal("empty tool set")
		}
		if seen[prompt] {
			t.Fatalf("prompt repeated before the pool was exhausted: %q", prompt)
		}
		seen[prompt] = true
	}

	// Next pass reuses the pool.
	prompt, _ := s.Next()
	if !seen[prompt] {
		t.Fatalf("unexpected prompt after reshuffle: %q", prompt)
	}
}
