// Package config loads the completion endpoint settings and holds the
// defaults shared by the fetch and classification stages.
//
// MODEL, OPENROUTER_API_KEY and OPENROUTER_API_URL are read from a dotenv
// file first. Keys missing from the file fall back to the process
// environment. A missing file is not an error.
package config
