// Package game holds the catalogue of tracked game variants, the candidate
// and record shapes that cross package boundaries, and the collaborator
// contracts used by the acquisition engine.
package game
