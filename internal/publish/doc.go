// Package publish makes a working copy's directory tree available as a
// static site.
//
// Two publishers exist: GitBranchPublisher replaces the tree of a pages
// branch (gh-pages by default) and pushes it, and DirectoryPublisher mirrors
// the tree into a local directory. A GitHub Pages build can be requested
// after a branch publication with PagesBuildRequester.
package publish
