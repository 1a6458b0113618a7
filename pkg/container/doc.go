// Package container implements the tutorial-maker packaging format: a
// player executable with the project document and all referenced media
// appended after it, indexed by a manifest locatable from a fixed-width
// trailer at EOF.
//
// Two generations coexist. V2 is the trailer-indexed raw-byte form built
// by Build and read by OpenContainer. V1 is the older base64-embedded
// bundle where the document itself inlines every blob. OpenProject hides
// the difference behind a single document/resolve-media view.
package container
