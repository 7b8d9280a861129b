// Package encoder converts decoded trace records into analytics file
// formats.
//
// # Supported Formats
//
//   - Parquet: columnar, for query engines such as Athena or Spark
//   - Avro: row based OCF with embedded schema
//
// # Encoder Factory
//
//	factory := encoder.NewFactory(event.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(filePath, records)
//
// # Schema
//
// Both formats share one row layout:
//
//	source       trace file the record was read from
//	offset       byte offset of the record in that file
//	kind         event kind
//	name         event name from the catalog
//	background   emitted by a collector worker
//	fields       JSON object of the decoded payload fields
//	exported_at  export time
//
// Pointer fields are rendered as hex strings in the fields column so that
// they survive JSON readers that parse numbers as float64.
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip" (default), "uncompressed"
package encoder
