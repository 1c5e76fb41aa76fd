// Package confirm waits for the out-of-band confirmation step of a flow:
// the user logs in at the identity provider in a separate window, and the
// KMS answers on its ACS page with the next task for the agent.
//
// A [Poller] watches that window through a [Probe] until the ACS marker
// shows up in its location, lets the page settle, then parses the page
// body. An [HTTPSource] skips the window and posts to the ACS endpoint
// directly.
package confirm
