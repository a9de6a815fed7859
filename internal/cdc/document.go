package cdc

import "time"

// Metadata is the cdc_metadata sub-document spec.md §3/§6 requires on
// every materialized document.
type Metadata struct {
	SourceTimestamp *int64    `bson:"source_timestamp" json:"source_timestamp"`
	Operation       Operation `bson:"operation" json:"operation"`
	LogOffset       int64     `bson:"log_offset" json:"log_offset"`
	LogPartition    int       `bson:"log_partition" json:"log_partition"`
	ProcessedAt     time.Time `bson:"processed_at" json:"processed_at"`
}

// Document is the materialized, per-aggregate document (spec.md §3/§6).
// Fields holds the domain payload; it fully replaces any prior value on
// upsert (spec.md §4.1 step 6: "no field-level merging").
type Document struct {
	ID       string         `bson:"_id" json:"_id"`
	Fields   map[string]any `bson:"fields" json:"fields"`
	Metadata Metadata       `bson:"cdc_metadata" json:"cdc_metadata"`
}

// StoredTimestamp returns the document's stored source_timestamp, or nil
// if it never had one.
func (d *Document) StoredTimestamp() *int64 {
	if d == nil {
		return nil
	}

	return d.Metadata.SourceTimestamp
}
