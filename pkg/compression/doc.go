// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides GZIP compression for NF-e batches.

The authorization service accepts a batch either as plain XML inside
nfeDadosMsg or gzipped and base64 encoded inside nfeDadosMsgZip.

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(enviNFe)

Large batches cross [MinCompressSize] and are worth compressing:

	if compression.ShouldCompress(len(enviNFe)) {
	    // use the zipped operation
	}
*/
package compression
