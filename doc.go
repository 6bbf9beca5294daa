// Package civicmind provides multi-agent decision support for municipal
// operations.
//
// Six department agents (water, engineering, fire, sanitation, health,
// finance) evaluate incoming operational requests through a fixed reasoning
// pipeline: classify intent and risk, plan tool calls over read-only city
// data, rendezvous with the cross-department coordinator, judge feasibility
// and policy compliance, and emit a recommend / escalate / reject decision
// with a confidence score. Every completed evaluation is written to an
// append-only audit log.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/civicmind/civicmind/cmd/civicmind@latest
//
// Start it with seeded in-memory stores:
//
//	civicmind serve
//
// Submit a request and poll for the decision:
//
//	curl -X POST localhost:8080/api/v1/query \
//	  -d '{"type":"schedule_shift_request","location":"Downtown","requested_shift_days":2}'
//	curl localhost:8080/api/v1/query/<job_id>/result
//
// # Configuration
//
// The service runs with defaults out of the box; a YAML file configures the
// stores, thresholds, and optional LLM assistance:
//
//	pipeline:
//	  confidence_threshold: 0.7
//	  max_retries: 3
//
//	stores:
//	  coordination:
//	    driver: postgres
//	    dsn: ${COORDINATION_DSN}
//	  audit:
//	    driver: sqlite
//	    dsn: /var/lib/civicmind/audit.db
//
//	llm:
//	  provider: openai
//	  model: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//	  use:
//	    planner: true
//	    confidence: true
//
// With every llm.use flag off (the default) the service is fully
// deterministic: each pipeline phase has a rule-based fallback and the LLM is
// never consulted.
package civicmind
