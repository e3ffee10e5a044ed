// Package telemetry holds the in-memory telemetry model of a drone session.
//
// ChannelBuffer is a bounded FIFO ring for one telemetry stream. Aggregator
// owns one buffer per telemetry kind plus latest-value cells and is the single
// ingestion point for decoded samples. Hub fans live events out to SSE
// clients and keeps a short replay buffer for Last-Event-ID resume.
package telemetry
