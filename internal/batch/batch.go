// Package batch groups input rows into batches and builds the context each
// render sees. Global row indices are assigned before grouping, so batching
// never renumbers rows.
package batch

// Context keys exposed to templates and separators.
const (
	KeyIndex      = "index"
	KeyRowIndex   = "row_index"
	KeyBatch      = "batch"
	KeyBatchIndex = "batch_index"
	KeyStartIndex = "start_index"
	KeyEndIndex   = "end_index"
	KeyTotal      = "total"
	KeySize       = "size"
)

// Group is a run of consecutive rows. Offset is the 0-based position of the
// first row in the original sequence.
type Group[T any] struct {
	Offset int
	Rows   []T
}

// Chunk partitions rows into consecutive groups of size rows; the last group
// holds the remainder. A size of zero or less yields a single group. Empty
// input yields no groups. Groups share the backing array of rows.
func Chunk[T any](rows []T, size int) []Group[T] {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(rows) {
		return []Group[T]{{Offset: 0, Rows: rows}}
	}

	groups := make([]Group[T], 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		groups = append(groups, Group[T]{Offset: start, Rows: rows[start:end:end]})
	}
	return groups
}

// RowContexts builds one render context per row for unbatched rendering: the
// row's fields plus a 1-based index that overrides any index field.
func RowContexts(rows []map[string]any) []map[string]any {
	contexts := make([]map[string]any, len(rows))
	for i, row := range rows {
		ctx := make(map[string]any, len(row)+1)
		for k, v := range row {
			ctx[k] = v
		}
		ctx[KeyIndex] = i + 1
		contexts[i] = ctx
	}
	return contexts
}

// Batch is one rendered group of rows with its metadata. Indices are 1-based.
type Batch struct {
	Index      int
	StartIndex int
	EndIndex   int
	Total      int
	Rows       []map[string]any
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int {
	return len(b.Rows)
}

// Context returns the render context of the batch.
func (b Batch) Context() map[string]any {
	rows := make([]any, len(b.Rows))
	for i, row := range b.Rows {
		rows[i] = row
	}
	return map[string]any{
		KeyBatch:      rows,
		KeyBatchIndex: b.Index,
		KeyStartIndex: b.StartIndex,
		KeyEndIndex:   b.EndIndex,
		KeyTotal:      b.Total,
	}
}

// Summary returns the context handed to the output writer for the batch.
func (b Batch) Summary() map[string]any {
	return map[string]any{
		KeyBatchIndex: b.Index,
		KeySize:       b.Size(),
		KeyStartIndex: b.StartIndex,
		KeyEndIndex:   b.EndIndex,
		KeyTotal:      b.Total,
		KeyIndex:      b.Index,
	}
}

// Build groups rows into batches of size rows. Every row gets its global
// index (kept when the row already has one) and its 1-based row_index within
// the batch. The input is not modified.
func Build(rows []map[string]any, size int) []Batch {
	enriched := make([]map[string]any, len(rows))
	for i, row := range rows {
		enriched[i] = withIndex(row, i+1)
	}

	groups := Chunk(enriched, size)
	batches := make([]Batch, len(groups))
	for i, g := range groups {
		for j, row := range g.Rows {
			row[KeyRowIndex] = j + 1
		}
		batches[i] = Batch{
			Index:      i + 1,
			StartIndex: g.Offset + 1,
			EndIndex:   g.Offset + len(g.Rows),
			Total:      len(rows),
			Rows:       g.Rows,
		}
	}
	return batches
}

// withIndex copies row into a fresh map and sets index if absent.
func withIndex(row map[string]any, index int) map[string]any {
	out := make(map[string]any, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	if _, ok := out[KeyIndex]; !ok {
		out[KeyIndex] = index
	}
	return out
}
