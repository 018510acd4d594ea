// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ksaregtech/regtech-tui/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultTopK is the number of references attached to each answer.
	DefaultTopK = 5

	// SnippetLength is the rune length of a reference snippet before "...".
	SnippetLength = 200

	// minTermLength drops short words ("of", "is") from keyword matching.
	minTermLength = 3
)

// ============================================================================
// CORPUS
// ============================================================================

// Document is one retrievable chunk of a source PDF.
type Document struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// Corpus is an in-memory set of documents searched by keyword overlap.
type Corpus struct {
	docs  []Document
	terms []map[string]bool
}

// NewCorpus indexes docs. Documents without an ID get "chunk-N".
func NewCorpus(docs []Document) *Corpus {
	c := &Corpus{
		docs:  make([]Document, len(docs)),
		terms: make([]map[string]bool, len(docs)),
	}
	for i, d := range docs {
		if d.ID == "" {
			d.ID = fmt.Sprintf("chunk-%d", i+1)
		}
		c.docs[i] = d
		c.terms[i] = termSet(d.Source + " " + d.Text)
	}
	return c
}

// LoadCorpus reads a JSON array of documents from path.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("corpus %s has no documents", path)
	}
	return NewCorpus(docs), nil
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// Search returns up to k documents sharing the most terms with query.
// Documents with no shared term are never returned; ties keep corpus order.
func (c *Corpus) Search(query string, k int) []Document {
	if k <= 0 {
		k = DefaultTopK
	}
	q := termSet(query)
	if len(q) == 0 {
		return nil
	}

	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, terms := range c.terms {
		score := 0
		for t := range q {
			if terms[t] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Document, len(hits))
	for i, h := range hits {
		out[i] = c.docs[h.idx]
	}
	return out
}

// References converts documents to citation records.
func References(docs []Document) []model.Reference {
	refs := make([]model.Reference, len(docs))
	for i, d := range docs {
		refs[i] = model.Reference{
			ID:      d.ID,
			Source:  d.Source,
			Page:    d.Page,
			Snippet: snippet(d.Text),
		}
	}
	return refs
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= SnippetLength {
		return text
	}
	return string(r[:SnippetLength]) + "..."
}

// termSet lowercases s and splits it on anything that is not a letter or digit.
func termSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= minTermLength {
			set[w] = true
		}
	}
	return set
}

// ============================================================================
// ANSWER COMPOSITION
// ============================================================================

// composeAnswer builds the stub answer from the best matching document.
func composeAnswer(docs []Document) string {
	if len(docs) == 0 {
		return "I could not find a provision in the loaded documents that addresses this question. Try rephrasing it with the regulation's key terms."
	}
	best := docs[0]
	text := strings.Join(strings.Fields(best.Text), " ")
	return fmt.Sprintf("According to %s (page %d): %s", best.Source, best.Page, firstSentence(text))
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?"); i >= 0 && i < len(s)-1 {
		return s[:i+1]
	}
	return s
}

// ============================================================================
// SAMPLE CORPUS
// ============================================================================

// DefaultCorpus returns a small built-in sample for demos and tests.
func DefaultCorpus() *Corpus {
	return NewCorpus([]Document{
		{
			ID:     "sample-pdpl-1",
			Source: "sample-personal-data-protection.pdf",
			Page:   3,
			Text:   "A controller must notify the competent authority of a personal data breach without undue delay once it becomes aware of the breach. The notification describes the nature of the breach, the categories of data affected and the measures taken to contain it.",
		},
		{
			ID:     "sample-pdpl-2",
			Source: "sample-personal-data-protection.pdf",
			Page:   5,
			Text:   "Personal data may be transferred outside the Kingdom only where the transfer does not prejudice national security and the receiving jurisdiction provides an adequate level of protection for personal data.",
		},
		{
			ID:     "sample-aml-1",
			Source: "sample-anti-money-laundering-rules.pdf",
			Page:   12,
			Text:   "Financial institutions must apply customer due diligence measures when establishing a business relationship and must keep records of transactions for at least ten years after the relationship ends.",
		},
		{
			ID:     "sample-cyber-1",
			Source: "sample-cybersecurity-framework.pdf",
			Page:   8,
			Text:   "Member organizations shall define, approve and implement a cybersecurity governance structure. The board remains accountable for cybersecurity risk and shall review the cybersecurity strategy annually.",
		},
		{
			ID:     "sample-cyber-2",
			Source: "sample-cybersecurity-framework.pdf",
			Page:   21,
			Text:   "Third party service providers with access to customer data must be subject to a documented cybersecurity risk assessment before onboarding and periodically thereafter.",
		},
		{
			ID:     "sample-companies-1",
			Source: "sample-companies-law.pdf",
			Page:   2,
			Text:   "A limited liability company may be formed by one or more persons. The liability of each partner is limited to the value of the partner's share in the capital.",
		},
	})
}
