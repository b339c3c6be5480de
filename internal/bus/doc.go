// Package bus implements the Channel Bus on Redis Pub/Sub.
//
// Delivery is transient: a payload reaches only the subscriptions that are
// registered on the topic when it is published. Publishing to a topic with
// no subscribers is not an error. Order is preserved per topic and
// subscriber; nothing is persisted.
package bus
