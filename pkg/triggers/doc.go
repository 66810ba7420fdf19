// Package triggers fires named analytics events for the current page from a
// remotely fetched declarative configuration.
//
// A configuration is a list of entries, each naming a page pattern, optional
// exclusions, an event name and the trigger that fires it:
//
//	{"data": [
//	  {"page": "/products/*", "event": "productView", "trigger": "pageload"},
//	  {"page": "*", "excludes": "/checkout", "event": "ctaClick",
//	   "trigger": "click", "element": "button.cta"}
//	]}
//
// Loader fetches and caches the configuration with conditional requests.
// Engine waits until the data layer is stable, then dispatches every matching
// entry through its trigger kind. Click triggers are delegated listeners on
// the page root, so elements added later are covered without rebinding.
package triggers
