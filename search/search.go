// Copyright 2025 gamelens Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"io"
	"strings"
	"unicode"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/encoding"
	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/dataset"
)

// TermWeight is one entry of a sparse TF-IDF vector. Entries are sorted by
// ascending term id so two vectors can be intersected in a single pass.
type TermWeight struct {
	Term   int32
	Weight float32
}

// Result is an item returned by Query, ordered by descending similarity.
type Result struct {
	GameId int64
	Title  string
	Score  float32
}

// TextIndex is a TF-IDF index over item descriptions, queried by exact title.
// Rows keep catalog order, which makes tie-breaking deterministic.
type TextIndex struct {
	GameIds   []int64
	Titles    []string
	Vectors   [][]TermWeight
	titleRows map[string]int32
	vocabSize int
}

// NewTextIndex creates an empty text index.
func NewTextIndex() *TextIndex {
	return &TextIndex{titleRows: make(map[string]int32)}
}

// Len returns the number of indexed items.
func (idx *TextIndex) Len() int {
	return len(idx.Titles)
}

// Fit builds the index from the item catalog. Each item's text is tokenized,
// stop words removed, and the term counts weighted by smoothed IDF before L2
// normalization. When two items share a title, the first occurrence wins.
func (idx *TextIndex) Fit(games []dataset.Game) error {
	if len(games) == 0 {
		return errors.Annotate(base.ErrData, "no games to index")
	}
	idx.GameIds = make([]int64, 0, len(games))
	idx.Titles = make([]string, 0, len(games))
	idx.titleRows = make(map[string]int32, len(games))

	// term dictionary and per-document counts
	vocab := make(map[string]int32)
	docTerms := make([][]TermWeight, 0, len(games))
	df := make([]int32, 0)
	for _, game := range games {
		if _, exist := idx.titleRows[game.Title]; exist {
			log.Logger().Warn("duplicate title in catalog, keeping first occurrence",
				zap.String("title", game.Title),
				zap.Int64("game_id", game.GameId))
			continue
		}
		row := int32(len(idx.Titles))
		idx.titleRows[game.Title] = row
		idx.GameIds = append(idx.GameIds, game.GameId)
		idx.Titles = append(idx.Titles, game.Title)

		counts := make(map[int32]float32)
		for _, token := range tokenize(game.Genres) {
			termId, exist := vocab[token]
			if !exist {
				termId = int32(len(vocab))
				vocab[token] = termId
				df = append(df, 0)
			}
			if counts[termId] == 0 {
				df[termId]++
			}
			counts[termId]++
		}
		terms := make([]TermWeight, 0, len(counts))
		for termId, count := range counts {
			terms = append(terms, TermWeight{Term: termId, Weight: count})
		}
		docTerms = append(docTerms, terms)
	}
	idx.vocabSize = len(vocab)

	// smoothed IDF, then L2 normalize each row
	n := float32(len(idx.Titles))
	idf := make([]float32, len(df))
	for termId, count := range df {
		idf[termId] = math32.Log((1+n)/(1+float32(count))) + 1
	}
	idx.Vectors = make([][]TermWeight, len(docTerms))
	for row, terms := range docTerms {
		var norm float32
		for i := range terms {
			terms[i].Weight *= idf[terms[i].Term]
			norm += terms[i].Weight * terms[i].Weight
		}
		if norm > 0 {
			norm = math32.Sqrt(norm)
			for i := range terms {
				terms[i].Weight /= norm
			}
		}
		sortTerms(terms)
		idx.Vectors[row] = terms
	}
	log.Logger().Info("fit text index",
		zap.Int("n_items", len(idx.Titles)),
		zap.Int("n_terms", idx.vocabSize))
	return nil
}

// Query returns up to n items most similar to the item with the given title.
// The queried item itself is excluded and only strictly positive similarities
// are returned. An unknown title yields a nil result.
func (idx *TextIndex) Query(title string, n int) []Result {
	row, exist := idx.titleRows[title]
	if !exist {
		return nil
	}
	query := idx.Vectors[row]
	filter := base.NewTopKFilter(n)
	for i, vector := range idx.Vectors {
		if int32(i) == row {
			continue
		}
		if score := cosine(query, vector); score > 0 {
			filter.Push(int32(i), score)
		}
	}
	rows, scores := filter.PopAll()
	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{
			GameId: idx.GameIds[r],
			Title:  idx.Titles[r],
			Score:  scores[i],
		}
	}
	return results
}

// Has reports whether a title is present in the index.
func (idx *TextIndex) Has(title string) bool {
	_, exist := idx.titleRows[title]
	return exist
}

// cosine computes the dot product of two L2-normalized sparse vectors.
func cosine(a, b []TermWeight) float32 {
	var sum float32
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Term == b[j].Term:
			sum += a[i].Weight * b[j].Weight
			i++
			j++
		case a[i].Term < b[j].Term:
			i++
		default:
			j++
		}
	}
	return sum
}

func sortTerms(terms []TermWeight) {
	// insertion sort, rows are short
	for i := 1; i < len(terms); i++ {
		for j := i; j > 0 && terms[j].Term < terms[j-1].Term; j-- {
			terms[j], terms[j-1] = terms[j-1], terms[j]
		}
	}
}

// tokenize lowercases the text and splits it on non-alphanumeric runes,
// keeping tokens of at least two characters that are not stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, field := range fields {
		if len(field) >= 2 && !stopWords.Contains(field) {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// Marshal serializes the index.
func (idx *TextIndex) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, idx.GameIds); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, idx.Titles); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, idx.Vectors); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal deserializes the index and rebuilds the title lookup.
func (idx *TextIndex) Unmarshal(r io.Reader) error {
	if err := encoding.ReadGob(r, &idx.GameIds); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadGob(r, &idx.Titles); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadGob(r, &idx.Vectors); err != nil {
		return errors.Trace(err)
	}
	idx.titleRows = make(map[string]int32, len(idx.Titles))
	for row, title := range idx.Titles {
		if _, exist := idx.titleRows[title]; !exist {
			idx.titleRows[title] = int32(row)
		}
	}
	return nil
}
