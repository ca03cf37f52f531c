// Package classifier labels and summarizes mail records with a chat
// completion model.
//
// All records of a batch go out in a single request. The model is asked for
// structured JSON output constrained to the label set by default; whatever it
// returns is read back through package extract, and subject and sender are
// back-filled from the source records when the model dropped them.
//
// Completion problems are reported on the Result (Error, Details, RawContent,
// RawResponse) rather than as errors. Errors are reserved for configuration
// problems and failed mail fetches.
package classifier
