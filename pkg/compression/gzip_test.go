package compression

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchXML(items int) []byte {
	var b strings.Builder
	b.WriteString(`<enviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><idLote>1</idLote><indSinc>0</indSinc>`)
	for i := 0; i < items; i++ {
		b.WriteString(`<det nItem="1"><prod><cProd>SKU-1</cProd><cEAN>SEM GTIN</cEAN><xProd>Parafuso sextavado</xProd><NCM>73181500</NCM><CFOP>5102</CFOP></prod></det>`)
	}
	b.WriteString(`</enviNFe>`)
	return []byte(b.String())
}

func TestCompressor_RoundTripBatch(t *testing.T) {
	compressor := NewCompressor()
	batch := batchXML(20)

	compressed, err := compressor.Compress(batch)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(batch))

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, batch, decompressed)
}

func TestCompressor_EmptyData(t *testing.T) {
	compressor := NewCompressor()

	compressed, err := compressor.Compress([]byte{})
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestCompressor_Level(t *testing.T) {
	batch := batchXML(200)

	fast, err := NewCompressorWithLevel(gzip.BestSpeed).Compress(batch)
	require.NoError(t, err)
	best, err := NewCompressorWithLevel(gzip.BestCompression).Compress(batch)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(best), len(fast))

	_, err = NewCompressorWithLevel(42).Compress(batch)
	assert.Error(t, err)
}

func TestShouldCompress(t *testing.T) {
	assert.False(t, ShouldCompress(0))
	assert.False(t, ShouldCompress(MinCompressSize-1))
	assert.True(t, ShouldCompress(MinCompressSize))
	assert.True(t, ShouldCompress(len(batchXML(200))))
}

func TestCompressor_InvalidData(t *testing.T) {
	compressor := NewCompressor()

	_, err := compressor.Decompress([]byte("<enviNFe/>"))
	assert.Error(t, err)

	compressed, err := compressor.Compress(batchXML(1))
	require.NoError(t, err)
	corrupted := bytes.Clone(compressed)
	corrupted[0], corrupted[1] = 0xFF, 0xFF
	_, err = compressor.Decompress(corrupted)
	assert.Error(t, err)
}

func TestCompressor_EncodeString(t *testing.T) {
	compressor := NewCompressor()
	batch := batchXML(5)

	encoded, err := compressor.EncodeString(batch)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "<")

	decoded, err := compressor.DecodeString(encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)

	_, err = compressor.DecodeString("not base64!")
	assert.Error(t, err)
}

func TestCompressor_Limit(t *testing.T) {
	batch := batchXML(50)
	compressed, err := NewCompressor().Compress(batch)
	require.NoError(t, err)

	_, err = NewCompressor().WithLimit(int64(len(batch) - 1)).Decompress(compressed)
	assert.ErrorIs(t, err, ErrTooLarge)

	out, err := NewCompressor().WithLimit(int64(len(batch))).Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, batch, out)
}
