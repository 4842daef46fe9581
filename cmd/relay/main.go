// Package main is the entry point for the relay gateway.
package main

func main() {
	Execute()
}
