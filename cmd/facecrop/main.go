// Command facecrop crops photos to a square around the first face found.
package main

func main() {
	Execute()
}
