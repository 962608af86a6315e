package domain

import (
	"strings"
	"time"
)

// KeywordCategory selects how a keyword rule acts on a message
type KeywordCategory string

const (
	// KeywordExclude vetoes a message before classification
	KeywordExclude KeywordCategory = "exclude"
	// KeywordForce accepts a message as a rider order without classifier confidence
	KeywordForce KeywordCategory = "force"
)

// Valid reports whether c is a known category
func (c KeywordCategory) Valid() bool {
	return c == KeywordExclude || c == KeywordForce
}

// KeywordRule is an operator-managed keyword; (Word, Category) is unique
type KeywordRule struct {
	ID        int64
	Word      string
	Category  KeywordCategory
	OwnerID   string
	CreatedAt time.Time
}

// NormalizeKeyword lower-cases and trims a keyword
func NormalizeKeyword(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// KeywordMatch is the verdict of the keyword rule engine
type KeywordMatch struct {
	Excluded bool
	Forced   bool
	Word     string // the rule that decided, empty when nothing matched
}
