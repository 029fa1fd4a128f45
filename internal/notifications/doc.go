// Package notifications delivers sync milestones via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when notifications are disabled. Run
// summary and error notifications can be toggled independently so an operator
// can keep failure alerts without per-run chatter.
//
// Extend this package if you need alternative transports; callers depend only
// on the Service interface.
package notifications
