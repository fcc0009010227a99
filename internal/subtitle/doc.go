// Package subtitle holds the subtitle entry model and the pure formatting
// logic around it: order-preserving merge of out-of-order recognition
// results, SRT rendering and parsing, and text export in original,
// translated, and bilingual modes.
package subtitle
