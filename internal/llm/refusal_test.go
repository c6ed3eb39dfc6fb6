package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeRefusal(t *testing.T) {
	assert.True(t, LooksLikeRefusal("I am unable to read this document."))
	assert.True(t, LooksLikeRefusal("As a large language model, I cannot provide legal advice."))
	assert.False(t, LooksLikeRefusal("ABC Ltd appointed XYZ & Co as statutory auditor for five years."))
	assert.False(t, LooksLikeRefusal(""))
}
