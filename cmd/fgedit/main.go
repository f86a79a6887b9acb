// Package main provides the fgedit CLI entry point.
package main

func main() {
	Execute()
}
