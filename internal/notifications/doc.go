// Package notifications delivers job outcomes via ntfy.
//
// The default implementation publishes to the ntfy topic URL configured in
// config.toml and degrades to a no-op when no topic is set. Completed and
// failed notifications can be toggled independently. The workflow manager
// depends only on the Service interface.
package notifications
