// Package chainquery and its sub-packages implement a blockchain data query service.
/*
chainquery serves, over a RESTful API, the metadata of the configured blockchain platforms (their networks, the
entities of each network and the attributes of each entity), bounded listings of attribute values and entity data
queries, all backed by a relational store.

Architecture

At startup (cmd/chainquery) the service binds its listeners and then bootstraps (package lib/bootstrap): it opens the
backing store (package lib/store) and introspects every configured platform (package discovery), retrying until the
store is usable or the startup deadline passes. A platform whose introspection fails is left out while the others are
served. Only then are requests accepted.

Attributes are classified by their estimated number of distinct values. The values of low cardinality attributes are
cached (package lib/cache) with a time to live, concurrent misses on one attribute sharing a single store query. High
cardinality attributes are always listed with a bounded live query and never cached.

The metadata served (package metadata) is the discovered graph with the configured overrides applied on every call:
items can be hidden, renamed, described and reordered, and attribute values rescaled or relabelled for display. Entity
data queries (package dataquery) are validated against that same visible metadata.

Every request but the welcome page must carry a valid API key in its "apikey" header (package auth). Keys come from
the configuration and, optionally, from a PostgreSQL table or a MongoDB collection refreshed on schedule. Usage events
of the served requests can be published to an AMQP message broker (package lib/msg).

Every backing store query runs on a bounded worker pool (package lib/pool), apart from the connections accepted by the
HTTP server, so slow queries never hold back the acceptance of new requests.

The service can also be monitored via a Prometheus API by setting the flag "-m" at startup.
*/
package chainquery
