// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package feedback carries interaction events from the API to the
// learner over a watermill bus.
//
// Two transports are supported. gochannel keeps everything in process and
// suits single-node deployments and tests. nats uses JetStream, optionally
// with an embedded server, so feedback survives restarts and is shared by
// several learner replicas through a queue group.
//
// The flow:
//
//	API -> Publisher.PublishFeedback -> topic -> Consumer -> Engine.IngestFeedback
//
// Message UUIDs are event ids. JetStream drops re-published ids inside
// the duplicate window and the learner drops the rest.
//
// Failed messages are retried with exponential backoff and end up on the
// poison topic. Events that can never succeed go there immediately, with
// the cause under the poison_cause metadata key.
package feedback
