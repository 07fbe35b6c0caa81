// Package feed defines the narrow contracts for every external collaborator
// of the loop: the three data feeds, the content generator, and the poster.
//
// Adapters live outside this repository. The loop only ever sees these
// interfaces plus the typed Error they are required to return, so a
// misbehaving adapter can degrade a cycle but never crash it.
package feed
