// Package emit routes events from inputs to outputs.
//
// Inputs see only the Router interface. A Table implements it by matching
// the event tag against route patterns and handing the batch to the route's
// outputs through an OutputChain. Every Output receives the chain and calls
// Next when it is done, so an output can stop the rest of the chain by
// returning an error without calling it.
//
// Tags are dot-separated ("syslog.auth"). Route patterns follow the same
// shape: "*" matches one part, "**" any number of parts, and "{a,b}"
// alternatives.
//
// Emitter wraps a Router so components can be handed a stable value while
// the router behind it is swapped on reload.
package emit
