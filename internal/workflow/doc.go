// Package workflow drives queue items through the conversion pipeline:
// pending containers are decoded, tagged, and organized into the library by a
// pool of workers that claim items atomically from the shared queue store.
package workflow
