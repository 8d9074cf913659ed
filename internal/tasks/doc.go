// Package tasks runs long review exports with real-time progress reporting.
//
// # Export
//
// [Engine.Export] resolves display titles for every reviewed track or album and then writes the
// export with the formatter package. Lookups run on a small worker pool; the catalog client's own rate
// limiter paces the requests. A failed lookup leaves the raw id in place and is counted in the
// result rather than failing the export.
//
// The Markdown cover is the image of the first reviewed item (in review order) that has one.
//
// # Progress Reporting
//
// Operations accept an optional send-only [ProgressUpdate] channel. Updates use select with default so
// a slow or absent reader never blocks an export.
package tasks
