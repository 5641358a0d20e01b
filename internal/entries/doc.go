// Package entries stores config entries and drives their lifecycle.
//
// A config entry is one configured account of an integration: its
// credentials and options as a versioned key/value mapping, plus the
// runtime state the supervisor last observed. The Manager owns the
// entries, calls the integration's hooks in order (migrate, setup,
// unload) and records the outcome:
//
//	not_loaded ──setup──▶ loaded ──unload──▶ not_loaded
//	     │                   │
//	     │                   └─unload fails─▶ failed_unload
//	     ├─migration fails──▶ migration_error
//	     └─setup fails──────▶ setup_error
//
// Operations on a single entry are serialised; different entries proceed
// independently.
package entries
