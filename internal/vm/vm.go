// Package vm manages the hypervisor backend process behind each node.
// Backends are detached processes; everything this package knows about them
// between invocations comes from the store's handle files.
package vm
