// Package services defines the shared error taxonomy for external
// capability calls and the context annotations used to correlate structured
// logs across pipeline stages. Provider clients live in subpackages.
package services
