// Package connectors holds the producers that feed the pipeline: an
// inventory reader, a directory crawler, a directory watch and a mailbox
// poller. Each implements driven.Producer and knows nothing of the core
// beyond the arrivals it emits.
package connectors
