package pcec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOutcomes(t *testing.T) {
	text := `# Divergence review
=====================

- [ ] Wire the retry gene to the timeout signal
TODO: measure rollback frequency per gene
ACTION: split the messaging capability into send and receive

The recurring timeouts all originate from the same unbounded queue.
- The selector keeps picking the repair gene because errsig patterns are too broad.
ok
---
`
	got := ExtractOutcomes(text)

	require.Len(t, got.Actions, 3)
	assert.Equal(t, "Wire the retry gene to the timeout signal", got.Actions[0])
	assert.Equal(t, "measure rollback frequency per gene", got.Actions[1])
	assert.Equal(t, "split the messaging capability into send and receive", got.Actions[2])

	require.Len(t, got.Insights, 2)
	assert.Contains(t, got.Insights[0], "unbounded queue")
	assert.Contains(t, got.Insights[1], "errsig patterns are too broad")
}

func TestExtractOutcomes_SkipsStructuralLines(t *testing.T) {
	got := ExtractOutcomes("# Heading\n\n----\n====\n***\n")
	assert.Empty(t, got.Actions)
	assert.Empty(t, got.Insights)
}

func TestExtractOutcomes_TrivialLinesDropped(t *testing.T) {
	got := ExtractOutcomes("yes\nok then\nshort line\n")
	assert.Empty(t, got.Insights)
}

func TestExtractOutcomes_EmptyInput(t *testing.T) {
	got := ExtractOutcomes("")
	assert.Empty(t, got.Actions)
	assert.Empty(t, got.Insights)
}
