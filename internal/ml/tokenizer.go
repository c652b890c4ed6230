package ml

import (
	"bufio"
	"os"
	"strings"
	"unicode"
)

// wordPieceTokenizer is a greedy longest-match WordPiece tokenizer over a
// BERT vocab.txt file. It covers what the cross-encoder needs and nothing
// more.
type wordPieceTokenizer struct {
	vocab map[string]int64
	unkID int64
	clsID int64
	sepID int64
}

func loadWordPieceVocab(path string) (*wordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var idx int64
	for scanner.Scan() {
		vocab[strings.TrimSpace(scanner.Text())] = idx
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	t := &wordPieceTokenizer{vocab: vocab}
	t.unkID = t.lookup("[UNK]")
	t.clsID = t.lookup("[CLS]")
	t.sepID = t.lookup("[SEP]")
	return t, nil
}

func (t *wordPieceTokenizer) lookup(token string) int64 {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return 0
}

// encodePair builds [CLS] query [SEP] passage [SEP] with segment ids,
// truncating the passage to fit maxTokens.
func (t *wordPieceTokenizer) encodePair(query, passage string, maxTokens int) ([]int64, []int64) {
	queryIDs := t.encode(query)
	passageIDs := t.encode(passage)

	budget := maxTokens - 3
	if len(queryIDs) > budget/2 {
		queryIDs = queryIDs[:budget/2]
	}
	if remaining := budget - len(queryIDs); len(passageIDs) > remaining {
		passageIDs = passageIDs[:remaining]
	}

	ids := make([]int64, 0, len(queryIDs)+len(passageIDs)+3)
	typeIDs := make([]int64, 0, cap(ids))

	ids = append(ids, t.clsID)
	typeIDs = append(typeIDs, 0)
	for _, id := range queryIDs {
		ids = append(ids, id)
		typeIDs = append(typeIDs, 0)
	}
	ids = append(ids, t.sepID)
	typeIDs = append(typeIDs, 0)
	for _, id := range passageIDs {
		ids = append(ids, id)
		typeIDs = append(typeIDs, 1)
	}
	ids = append(ids, t.sepID)
	typeIDs = append(typeIDs, 1)

	return ids, typeIDs
}

func (t *wordPieceTokenizer) encode(text string) []int64 {
	var ids []int64
	for _, word := range basicTokenize(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// wordPiece splits a single word with greedy longest-match, using the ##
// continuation prefix.
func (t *wordPieceTokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > 100 {
		return []int64{t.unkID}
	}

	var pieces []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matched int64 = -1
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return []int64{t.unkID}
		}
		pieces = append(pieces, matched)
		start = end
	}
	return pieces
}

// basicTokenize lowercases and splits on whitespace and punctuation,
// keeping punctuation as standalone tokens.
func basicTokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}
