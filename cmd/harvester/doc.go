// Package main hosts the outbreak harvester entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes probes, Prometheus metrics, the
//     admin harvest trigger, and read endpoints over stored bulletins.
//   - Harvest run: internal/harvester fetches the listing page with colly,
//     filters PDF anchors by title date and keywords, dedupes them against the
//     store, extracts document text on a bounded errgroup pool paced per host,
//     and commits every new record in one transaction.
//   - Persistence & fanout: records go to Postgres via pgx when db.dsn is set
//     (in-memory otherwise). Each committed record is announced on Pub/Sub when
//     pubsub.project_id is set.
//   - Configuration & plumbing: Viper reads an optional YAML file plus
//     HARVESTER_* environment overrides; zap provides structured logging.
//
// Quick checklist:
//   - Serve: go run ./cmd/harvester -config config.yaml
//   - One run and exit: go run ./cmd/harvester -once
//   - Protect the trigger: HARVESTER_AUTH_ENABLED=true HARVESTER_AUTH_API_KEY=...
//   - TLS verification stays on unless HARVESTER_HTTP_INSECURE_SKIP_VERIFY=true.
package main
