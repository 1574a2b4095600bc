package reader

// ScanFunc is called by Scan for each delivered batch. Returning an error
// drains the reader and the error is returned from Scan.
type ScanFunc func(*Batch) error
