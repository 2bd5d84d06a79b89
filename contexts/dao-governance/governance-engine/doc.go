// Package governanceengine implements the Governance Engine inside the
// dao-governance context.
//
// The module owns proposal lifecycle orchestration (create/vote/execute),
// deterministic result evaluation against quorum and approval thresholds,
// monitoring reads, and governance event production through outbox-backed
// workers. It keeps business rules in application/domain layers and isolates
// infrastructure concerns behind ports and adapters.
package governanceengine
