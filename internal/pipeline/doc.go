// Package pipeline runs the periodic maintenance of the peer network.
//
// A maintenance round is a sequence of steps executed against a shared
// Round record: greeting the configured seed peers, refreshing the most
// recently seen peers and persisting the directory. Greetings fan out
// concurrently through a Sweep bounded with errgroup.
package pipeline
