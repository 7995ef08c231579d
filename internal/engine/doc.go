// Package engine maintains the staging line of a branch and the build snapshots cut
// from it.
//
// For every target branch there are three refs: the branch itself (refs/heads/<name>),
// its staging mirror (refs/staging/<name>) holding the chain of STAGED and INTEGRATING
// changes on top of the branch, and immutable build snapshots (refs/builds/<id>).
//
// Every mutation is a Batch: a set of compare-and-set ref updates plus change status
// transitions that either both take effect or neither does. Operations on one branch
// are serialized with per-branch locks; different branches never contend.
package engine
