// Package main provides the orthomate command: a local worker that serves the
// clinical note dashboard.
package main

func main() {
	Execute()
}
