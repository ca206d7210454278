// Command notifykit runs the notification delivery engine and offers
// template tooling.
package main

func main() {
	Execute()
}
