package batch

import (
	"fmt"
	"testing"
)

func TestSplitSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tokens    int
		size      int
		wantSizes []int
	}{
		{0, 500, nil},
		{1, 500, []int{1}},
		{500, 500, []int{500}},
		{501, 500, []int{500, 1}},
		{1200, 500, []int{500, 500, 200}},
		{250, 100, []int{100, 100, 50}},
		{3, 1, []int{1, 1, 1}},
		{5, 0, []int{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%d_by_%d", tt.tokens, tt.size), func(t *testing.T) {
			t.Parallel()

			tokens := makeTokens(tt.tokens)
			batches := Split(tokens, tt.size)

			if len(batches) != len(tt.wantSizes) {
				t.Fatalf("len(batches) = %d, want %d", len(batches), len(tt.wantSizes))
			}
			for i, want := range tt.wantSizes {
				if len(batches[i]) != want {
					t.Fatalf("batch %d size = %d, want %d", i, len(batches[i]), want)
				}
			}
		})
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	t.Parallel()

	tokens := makeTokens(1200)
	batches := Split(tokens, 500)

	var flattened []string
	for _, b := range batches {
		flattened = append(flattened, b...)
	}

	if len(flattened) != len(tokens) {
		t.Fatalf("flattened length = %d, want %d", len(flattened), len(tokens))
	}
	for i := range tokens {
		if flattened[i] != tokens[i] {
			t.Fatalf("token %d = %q, want %q", i, flattened[i], tokens[i])
		}
	}
}

func TestSplitNoEmptyBatches(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 20; n++ {
		for size := 1; size <= 7; size++ {
			for _, b := range Split(makeTokens(n), size) {
				if len(b) == 0 {
					t.Fatalf("empty batch for n=%d size=%d", n, size)
				}
				if len(b) > size {
					t.Fatalf("oversized batch %d for n=%d size=%d", len(b), n, size)
				}
			}
		}
	}
}

func makeTokens(n int) []string {
	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		tokens = append(tokens, fmt.Sprintf("token-%04d", i))
	}
	return tokens
}
