// Package events publishes streaming session events.
//
// Components emit events through the Notifier interface. Hub is the
// websocket implementation served on /ws; every connected client receives
// each event as a JSON text frame. Events are best effort: a client that
// cannot keep up is disconnected.
package events
