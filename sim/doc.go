// Package sim provides the world simulation engine: a sequential, seeded
// day-stepper that produces sales, marketing and inventory tables for a
// synthetic company.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - config.go: WorldConfig, the immutable parameter set, and its validation
//   - stepper.go: StepDay, the fixed stage order for one calendar day
//   - history.go: CreateHistory (full range) and AdvanceOneDay (resume)
//
// # Stage order
//
// Each day runs Demand → Production/opening → Allocation+Dispatch →
// Inventory close → Marketing → CAC injection. Every stochastic draw comes
// from one *rand.Rand consumed in that order, which is what makes two runs
// with the same SimulationKey byte-identical.
//
// # Sub-packages
//
//   - sim/tables/: CSV (optionally zstd-compressed) table export and import
//   - sim/store/: append-only log persistence (memory, SQLite, Postgres, Redis cache)
//   - sim/company/: company lifecycle service on top of a store
//   - sim/metrics/: Prometheus instrumentation
package sim
