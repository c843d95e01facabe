// Package ilw is the facade: a small logger whose state is copied on every
// builder call, plus helpers that hand its routing to timelines and trackers.
//
// A plain logger forwards its arguments as they are:
//
//	log := ilw.New(ilw.WithObserver(obs))
//	log.Report().Warn("quota low", remaining)
//
// Event mode names each record instead:
//
//	log.Event().Persist().Info("checkout", order)
//
// Timelines created from a logger inherit its flags and meta:
//
//	root := log.Meta(req).Timeline("fetch", timeline.Hooks{OnReject: onFail})
//	branches, _ := root.All(2)
//
// FromConfig assembles the sinks described by a config.Config.
package ilw
