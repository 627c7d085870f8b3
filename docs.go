// Package semtable is a client for semantic table enrichment backends.  It
// manages datasets of annotated tables, reconciles table columns against
// external knowledge bases (Wikidata, GeoNames, HERE geocoding), extends
// reconciled columns with properties retrieved from extender services, and
// provides dataframe utilities for preparing tabular data before upload.
package semtable

var ApplicationName = `semtable`
var ApplicationSummary = `Semantic enrichment of tabular data.`
var ApplicationVersion = `0.9.1`
