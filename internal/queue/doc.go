// Package queue provides the FIFO byte-buffer queue used as a node inbox.
package queue
