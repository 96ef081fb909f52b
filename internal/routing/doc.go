// Package routing holds the set of active audio patches and tells listeners
// when patches come and go.
//
// Patches reach the panel three ways: static entries in config, MQTT events
// published by the routing service, and the admin API. Every mutation and
// every listener notification runs under the panel's dispatch lock. The
// effect registry's CreateEffect is wrapped in WithSnapshot, so an effect
// is created either wholly before or wholly after a patch transition and
// the registry lock is always taken inside the dispatch lock.
package routing
