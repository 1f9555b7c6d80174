package utils

import (
	"testing"
)
import "github.com/stretchr/testify/assert"

func TestSplitByMultipleDelimiters(t *testing.T) {
	input := "a,b;c"
	delimiters := []string{",", ";"}
	expected := []string{"a", "b", "c"}
	result := SplitByMultipleDelimiters(input, delimiters...)
	assert.Equal(t, expected, result)
	input = "a,b=c"
	expected = []string{"a", "b=c"}
	result = SplitByMultipleDelimiters(input, delimiters...)
	assert.Equal(t, expected, result)
	input = "a"
	expected = []string{"a"}
	result = SplitByMultipleDelimiters(input, delimiters...)
	assert.Equal(t, expected, result)
	input = "a,b"
	expected = []string{"a,b"}
	result = SplitByMultipleDelimiters(input)
	assert.Equal(t, expected, result)
}

func TestNormalizeSlug(t *testing.T) {
	assert.Equal(t, "river", NormalizeSlug("  River "))
	assert.Equal(t, "abc", NormalizeSlug("ABC"))
	assert.Equal(t, "", NormalizeSlug("   "))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "9876543210", Digits("98765 43210"))
	assert.Equal(t, "919876543210", Digits("+91-98765-43210"))
	assert.Equal(t, "", Digits("no digits"))
}
