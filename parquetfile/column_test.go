package parquetfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/parquet-go/parquet-go/format"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proto2parquet/schema"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Compression = "none"
	return cfg
}

func mustSchema(t *testing.T, fields ...schema.Field) *schema.Schema {
	t.Helper()
	s, err := schema.New("Doc", fields)
	require.NoError(t, err)
	return s
}

// writeFile writes one file through fn and reads it back.
func writeFile(t *testing.T, s *schema.Schema, cfg Config, metrics *Metrics, fn func(w *Writer)) *parquetFile {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg, nil, metrics)
	require.NoError(t, err)
	require.NoError(t, w.SetRoot(s))
	fn(w)
	require.NoError(t, w.Close())
	return readFile(t, buf.Bytes())
}

func TestColumnDictionaryFallbackIsMonotonic(t *testing.T) {
	s := mustSchema(t, schema.Field{Name: "tag", Type: format.ByteArray, Converted: schema.UTF8, Repetition: format.Required})
	cfg := testConfig()
	cfg.DictionaryMaxEntries = 4
	cfg.PageSize = minPageSize
	metrics := NewMetrics(prometheus.NewPedanticRegistry())

	var firstGroup, secondGroup []interface{}
	for i := 0; i < 2000; i++ {
		// Few distinct values first, then one past the dictionary capacity,
		// then only values the dictionary already holds.
		var v string
		switch {
		case i < 500:
			v = fmt.Sprint("v", i%3)
		case i < 1000:
			v = fmt.Sprint("v", i%5)
		default:
			v = fmt.Sprint("v", i%2)
		}
		firstGroup = append(firstGroup, v)
	}
	for i := 0; i < 100; i++ {
		secondGroup = append(secondGroup, fmt.Sprint("v", i%3))
	}

	f := writeFile(t, s, cfg, metrics, func(w *Writer) {
		for _, group := range [][]interface{}{firstGroup, secondGroup} {
			for _, v := range group {
				require.NoError(t, w.Append(1, []byte(v.(string)), true, 0, 0))
				require.NoError(t, w.EndRecord())
			}
			require.NoError(t, w.FlushRowGroup())
		}
	})

	require.Len(t, f.metadata.RowGroups, 2)

	first := &f.metadata.RowGroups[0].Columns[0]
	assert.Equal(t, []format.Encoding{format.PlainDictionary, format.Plain}, first.MetaData.Encoding)
	got := f.readColumn(t, first, 0, 0)
	assert.Equal(t, firstGroup, got.values)
	require.Greater(t, len(got.encodings), 2)
	assert.Equal(t, format.PlainDictionary, got.encodings[0])
	sawPlain := false
	for i, enc := range got.encodings {
		if enc == format.Plain {
			sawPlain = true
		}
		if sawPlain {
			assert.Equal(t, format.Plain, enc, "page %d reverted to dictionary encoding", i)
		}
	}
	assert.True(t, sawPlain)

	// The next row group starts over with a fresh dictionary.
	second := &f.metadata.RowGroups[1].Columns[0]
	assert.Equal(t, []format.Encoding{format.PlainDictionary}, second.MetaData.Encoding)
	got = f.readColumn(t, second, 0, 0)
	assert.Equal(t, secondGroup, got.values)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dictionaryFallbacks))
}

func TestColumnPageLayoutMatchesDeclaredSize(t *testing.T) {
	s := mustSchema(t,
		schema.Field{Name: "links", Repetition: format.Repeated, Fields: []schema.Field{
			{Name: "url", Type: format.ByteArray, Repetition: format.Optional},
			{Name: "rank", Type: format.Int32, Repetition: format.Repeated},
		}},
	)
	url, rank := 2, 3
	require.Equal(t, "url", s.Node(url).Name())
	require.Equal(t, "rank", s.Node(rank).Name())

	for _, dictionary := range []bool{true, false} {
		t.Run(fmt.Sprintf("dictionary=%v", dictionary), func(t *testing.T) {
			cfg := testConfig()
			cfg.Dictionary = dictionary
			cfg.PageSize = minPageSize

			f := writeFile(t, s, cfg, nil, func(w *Writer) {
				for i := 0; i < 3000; i++ {
					for j := 0; j < i%4; j++ {
						rep := 0
						if j > 0 {
							rep = 1
						}
						if j%3 == 2 {
							require.NoError(t, w.Append(url, nil, true, rep, 1))
						} else {
							require.NoError(t, w.Append(url, []byte(fmt.Sprint("http://", i%50, "/", j)), true, rep, 2))
						}
						require.NoError(t, w.Append(rank, AppendInt32(nil, int32(i)), false, rep, 2))
					}
					if i%4 == 0 {
						require.NoError(t, w.Append(url, nil, true, 0, 0))
						require.NoError(t, w.Append(rank, nil, false, 0, 0))
					}
					require.NoError(t, w.EndRecord())
				}
			})

			for _, chunk := range f.metadata.RowGroups[0].Columns {
				node := s.Node(url)
				if chunk.MetaData.PathInSchema[len(chunk.MetaData.PathInSchema)-1] == "rank" {
					node = s.Node(rank)
				}
				pages := f.readChunk(t, &chunk)
				dataPages := 0
				for _, p := range pages {
					if p.header.Type != format.DataPage {
						continue
					}
					dataPages++
					assert.Equal(t, int(p.header.UncompressedPageSize), reconstructPageSize(t, p, node))
				}
				assert.Greater(t, dataPages, 1, "%s should span several pages", node.PathString())
			}
		})
	}
}

// reconstructPageSize sums the level stream lengths and the size of the
// decoded values of a data page.
func reconstructPageSize(t *testing.T, p readPage, node *schema.Node) int {
	t.Helper()
	data := p.body
	size := 0
	n := int(p.header.DataPageHeader.NumValues)
	present := n

	if node.MaxRep > 0 {
		l := int(binary.LittleEndian.Uint32(data))
		size += 4 + l
		data = data[4+l:]
	}
	if node.MaxDef > 0 {
		defs, rest, err := decodeLevels(data, n, node.MaxDef)
		require.NoError(t, err)
		size += len(data) - len(rest)
		data = rest
		present = 0
		for _, d := range defs {
			if int(d) == node.MaxDef {
				present++
			}
		}
	}

	switch p.header.DataPageHeader.Encoding {
	case format.Plain:
		values, err := decodePlainValues(data, node.Type, present)
		require.NoError(t, err)
		for _, v := range values {
			switch v := v.(type) {
			case string:
				size += 4 + len(v)
			case int32:
				size += 4
			}
		}
	case format.PlainDictionary:
		_, used, err := decodeRLE(data[1:], present, int(data[0]))
		require.NoError(t, err)
		size += 1 + used
	}
	return size
}

func TestColumnBooleans(t *testing.T) {
	s := mustSchema(t, schema.Field{Name: "flag", Type: format.Boolean, Repetition: format.Optional})
	input := []interface{}{true, nil, false, true, true, nil, false, false, true, true, nil}

	f := writeFile(t, s, testConfig(), nil, func(w *Writer) {
		for _, v := range input {
			if v == nil {
				require.NoError(t, w.Append(1, nil, false, 0, 0))
			} else {
				require.NoError(t, w.AppendBool(1, v.(bool), 0, 1))
			}
			require.NoError(t, w.EndRecord())
		}
	})

	chunk := &f.metadata.RowGroups[0].Columns[0]
	assert.Equal(t, []format.Encoding{format.Plain}, chunk.MetaData.Encoding)
	assert.Zero(t, chunk.MetaData.DictionaryPageOffset)

	got := f.readColumn(t, chunk, 0, 1)
	var want []interface{}
	var defs []uint32
	for _, v := range input {
		if v == nil {
			defs = append(defs, 0)
			continue
		}
		defs = append(defs, 1)
		want = append(want, v)
	}
	assert.Equal(t, defs, got.def)
	assert.Equal(t, want, got.values)
}

func TestColumnRejectsInvalidInput(t *testing.T) {
	s := mustSchema(t,
		schema.Field{Name: "n", Type: format.Int64, Repetition: format.Optional},
		schema.Field{Name: "s", Type: format.ByteArray, Repetition: format.Required},
	)
	c, err := NewColumn(s.Node(1), testConfig(), nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Append(AppendInt64(nil, 1), false, 1, 1), ErrInvalidLevel)
	assert.ErrorIs(t, c.Append(AppendInt64(nil, 1), false, 0, 2), ErrInvalidLevel)
	assert.ErrorIs(t, c.Append(AppendInt32(nil, 1), false, 0, 1), ErrValueType)
	assert.ErrorIs(t, c.AppendBool(true, 0, 1), ErrValueType)
	assert.ErrorIs(t, c.Append(nil, false, 0, 1), ErrValueType, "absent at max D")
	assert.ErrorIs(t, c.Append(AppendInt64(nil, 1), false, 0, 0), ErrValueType, "present below max D")
	assert.Zero(t, c.NumRecords())

	require.NoError(t, c.Append(AppendInt64(nil, 1), false, 0, 1))
	require.NoError(t, c.Append(nil, false, 0, 0))
	assert.Equal(t, int64(2), c.NumRecords())

	str, err := NewColumn(s.Node(2), testConfig(), nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, str.Append([]byte("x"), false, 0, 0), ErrValueType)
	require.NoError(t, str.Append([]byte{}, true, 0, 0))

	_, err = NewColumn(s.Root(), testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestColumnEstimatedRowGroupSize(t *testing.T) {
	s := mustSchema(t, schema.Field{Name: "s", Type: format.ByteArray, Repetition: format.Required})
	cfg := testConfig()
	cfg.PageSize = minPageSize
	c, err := NewColumn(s.Node(1), cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(100), c.EstimatedRowGroupSize())

	for i := 0; i < 20000; i++ {
		require.NoError(t, c.Append([]byte(fmt.Sprint("value-", i)), true, 0, 0))
	}
	require.NotEmpty(t, c.pages)
	want := int64(c.dict.Size()/3+100+len(c.pages)*100) + c.compressedSize
	assert.Equal(t, want, c.EstimatedRowGroupSize())

	var buf bytes.Buffer
	_, err = c.writeRowGroup(newSink(&buf, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(100), c.EstimatedRowGroupSize())
	assert.Zero(t, c.NumRecords())
}
