// Package redis builds the go-redis client used to publish relay diagnostics
// to a capped Redis list for external log collectors.
package redis
