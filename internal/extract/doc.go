// Package extract pulls classification items out of a chat completion
// response whose shape is only loosely guaranteed.
//
// Extraction runs a fixed sequence of attempts and stops at the first one
// that yields a JSON value:
//
//  1. a pre-parsed structured field (top-level "parsed", the first choice's
//     message "parsed", or an object-valued message "content");
//  2. the model's text content, with code fences stripped, parsed whole or
//     sliced from the first '{' to the last '}'.
//
// The value found is then searched for an item list ("items", "emails" or
// "results") or a single item-shaped object. JSON nested inside string
// values is parsed and searched as well, within fixed depth and node bounds.
//
// Extract never fails. A response with no recognizable JSON yields an
// Outcome with Parsed set to false and the text content for diagnostics.
package extract
