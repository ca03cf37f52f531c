// Package resources provides MCP resources describing the classifier.
// Resources are read-only data sources that MCP clients can fetch: the
// defaults and bounds applied to classify tool arguments, and the
// instruction prompt sent to the model.
package resources
