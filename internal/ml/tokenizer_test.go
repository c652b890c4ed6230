package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVocab(t *testing.T, tokens ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	content := ""
	for _, tok := range tokens {
		content += tok + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBasicTokenize(t *testing.T) {
	assert.Equal(t, []string{"dopamine", ",", "reward", "!"}, basicTokenize("Dopamine, reward!"))
	assert.Empty(t, basicTokenize("   "))
}

func TestWordPieceGreedyMatch(t *testing.T) {
	path := writeVocab(t, "[UNK]", "[CLS]", "[SEP]", "dopa", "##mine", "reward")
	tok, err := loadWordPieceVocab(path)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 4}, tok.wordPiece("dopamine"))
	assert.Equal(t, []int64{5}, tok.wordPiece("reward"))
	assert.Equal(t, []int64{0}, tok.wordPiece("zzzz"), "unmatched word maps to [UNK]")
}

func TestEncodePairLayout(t *testing.T) {
	path := writeVocab(t, "[UNK]", "[CLS]", "[SEP]", "dopamine", "reward")
	tok, err := loadWordPieceVocab(path)
	require.NoError(t, err)

	ids, typeIDs := tok.encodePair("dopamine", "reward", 512)
	require.Equal(t, len(ids), len(typeIDs))
	assert.Equal(t, []int64{1, 3, 2, 4, 2}, ids)
	assert.Equal(t, []int64{0, 0, 0, 1, 1}, typeIDs)
}

func TestEncodePairTruncation(t *testing.T) {
	path := writeVocab(t, "[UNK]", "[CLS]", "[SEP]", "a")
	tok, err := loadWordPieceVocab(path)
	require.NoError(t, err)

	long := ""
	for i := 0; i < 600; i++ {
		long += "a "
	}
	ids, _ := tok.encodePair(long, long, 128)
	assert.LessOrEqual(t, len(ids), 128)
}

func TestCrossEncoderUnavailableWithoutModel(t *testing.T) {
	enc, err := LoadCrossEncoder("", "")
	require.NoError(t, err)
	assert.False(t, enc.Available())

	enc, err = LoadCrossEncoder("/nonexistent/model.onnx", "/nonexistent/vocab.txt")
	require.NoError(t, err)
	assert.False(t, enc.Available())
}
