package model

type IngestFailure struct {
	Document string `json:"document"`
	Error    string `json:"error"`
	// Cause is the original error, kept for errors.Is/As by callers in process.
	Cause error `json:"-"`
}

// IngestReport summarises one ingestion run. ChunkCounts only holds
// documents that were fully indexed.
type IngestReport struct {
	ChunkCounts map[string]int  `json:"per_document_chunk_counts"`
	Failures    []IngestFailure `json:"failures"`
}

// TotalChunks sums the chunk counts of every indexed document.
func (r *IngestReport) TotalChunks() int {
	total := 0
	for _, n := range r.ChunkCounts {
		total += n
	}
	return total
}

// IngestJob is the queue message for asynchronous ingestion.
type IngestJob struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}
