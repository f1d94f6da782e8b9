// Package resultfiles scans a batch's temporary result directory for
// hang artefacts after the worker has exited. It does not parse result
// XML — the file formats are delegated to an external result-parser
// collaborator per §6 of the design; this package only answers "did the
// underlying test engine leave evidence that a hang happened out of
// band", which the batch executor folds into its hung classification.
package resultfiles
