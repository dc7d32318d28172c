// Package core holds the bank account linking workflow, the user and bank
// query services built around it, and the contracts adapters implement.
// Provider, storage and transport code lives in sibling packages and depends
// on core, never the other way around.
package core
