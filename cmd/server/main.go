// Command server runs the splitledger REST backend.
package main

func main() {
	Execute()
}
