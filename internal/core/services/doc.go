// Package services implements the driving port interfaces.
//
// Each service orchestrates driven ports around one concern:
//
//   - IngestService: incremental source-to-vector-store synchronization
//   - RetrievalService: grounded question answering over indexed chunks
//   - RouterService: specialist classification, dispatch and merging
//   - ChangelogService: ticket progress metrics from status transitions
//   - FollowUpService: stale unanswered question detection and reminders
//   - TicketService: the combined ticket-facing facade
//   - Scheduler: recurring background syncs and chase rounds
//   - SettingsService: typed configuration over the config store
//
// Services are pure Go with no CGO or external dependencies beyond the
// driven ports they are constructed with.
package services
