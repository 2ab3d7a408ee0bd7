// Package batch splits an ordered token list into gateway-sized chunks.
package batch

// Split chunks tokens into consecutive batches of at most size elements.
// Batch i contains tokens [i*size, (i+1)*size) in input order, so the
// concatenation of all batches equals the input. An empty input yields no
// batches; size below 1 is treated as 1.
func Split(tokens []string, size int) [][]string {
	if len(tokens) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([][]string, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}

	return batches
}
