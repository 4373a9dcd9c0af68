package parquetfile

import (
	"encoding/binary"

	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
)

// page is a finalized, compressed page waiting for its row group to be
// written.
type page struct {
	header format.PageHeader
	body   []byte
}

func newDataPage(numValues int, encoding format.Encoding, uncompressedSize int, body []byte) page {
	return page{
		header: format.PageHeader{
			Type:                 format.DataPage,
			UncompressedPageSize: int32(uncompressedSize),
			CompressedPageSize:   int32(len(body)),
			DataPageHeader: &format.DataPageHeader{
				NumValues: int32(numValues),
				Encoding:  encoding,
				// Both are set even for columns without level streams;
				// some readers reject data page headers without them.
				DefinitionLevelEncoding: format.RLE,
				RepetitionLevelEncoding: format.RLE,
			},
		},
		body: body,
	}
}

func newDictionaryPage(numValues int, uncompressedSize int, body []byte) page {
	return page{
		header: format.PageHeader{
			Type:                 format.DictionaryPage,
			UncompressedPageSize: int32(uncompressedSize),
			CompressedPageSize:   int32(len(body)),
			DictionaryPageHeader: &format.DictionaryPageHeader{
				NumValues: int32(numValues),
				Encoding:  format.PlainDictionary,
			},
		},
		body: body,
	}
}

// writeTo writes the page header and body and returns the header size.
func (p *page) writeTo(s *sink) (int64, error) {
	n, err := s.WriteMetadata(&p.header)
	if err != nil {
		return n, errors.Wrap(err, "page header")
	}
	if _, err := s.Write(p.body); err != nil {
		return n, errors.Wrap(err, "page body")
	}
	return n, nil
}

// appendLevelStream appends a length-prefixed level stream. Empty streams,
// from columns whose level is constantly zero, are omitted.
func appendLevelStream(dst, levels []byte) []byte {
	if len(levels) == 0 {
		return dst
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(levels)))
	return append(dst, levels...)
}

func levelStreamSize(levels []byte) int {
	if len(levels) == 0 {
		return 0
	}
	return 4 + len(levels)
}
