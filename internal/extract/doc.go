// Package extract turns raw response bodies (JSON documents or rendered
// markup) into game result candidates. Extraction never fails loudly: a
// payload that yields nothing is reported as a miss.
package extract
