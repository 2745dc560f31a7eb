// Package delivery fans feed updates out to Discord. Each subscriber type
// is an event bus subscriber for event.FeedUpdate.
package delivery
